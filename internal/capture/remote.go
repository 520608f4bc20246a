package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

// RemoteDevice receives frames from a remote camera that pushes encoded
// images (PNG, JPEG, ...) as binary websocket messages.
type RemoteDevice struct {
	url   string
	token string
}

func NewRemoteDevice(url, token string) *RemoteDevice {
	return &RemoteDevice{url: url, token: token}
}

func (d *RemoteDevice) ID() string       { return d.url }
func (d *RemoteDevice) Name() string     { return "remote " + d.url }
func (d *RemoteDevice) Type() DeviceType { return DeviceRemote }

// Open dials the remote camera once. Later connection drops are retried
// by the reader with exponential backoff.
func (d *RemoteDevice) Open(ctx context.Context) (FrameReader, error) {
	r := &remoteReader{url: d.url, token: d.token, delay: reconnectBaseDelay}
	if err := r.dial(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

type remoteReader struct {
	url   string
	token string

	mu      sync.Mutex
	writeMu sync.Mutex // serialises conn writes (ping, auth)
	conn    *websocket.Conn
	pingCtx context.CancelFunc
	delay   time.Duration
	closed  bool
}

func (r *remoteReader) dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", r.url, err)
	}

	// Not shared yet, no write lock needed.
	if r.token != "" {
		auth := map[string]string{"type": "auth", "token": r.token}
		if err := conn.WriteJSON(auth); err != nil {
			conn.Close()
			return fmt.Errorf("auth %s: %w", r.url, err)
		}
	}

	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})
	conn.SetReadDeadline(time.Now().Add(pongTimeout))

	r.mu.Lock()
	if r.pingCtx != nil {
		r.pingCtx()
	}
	pingCtx, pingCancel := context.WithCancel(context.Background())
	r.conn = conn
	r.pingCtx = pingCancel
	r.delay = reconnectBaseDelay
	r.mu.Unlock()

	go r.pingLoop(pingCtx, conn)
	return nil
}

func (r *remoteReader) ReadFrame(ctx context.Context) (image.Image, error) {
	for {
		r.mu.Lock()
		conn, closed := r.conn, r.closed
		r.mu.Unlock()
		if closed {
			return nil, io.EOF
		}

		if conn == nil {
			if err := r.redial(ctx); err != nil {
				return nil, err
			}
			continue
		}

		// Unblock the read if the caller gives up.
		stop := context.AfterFunc(ctx, func() {
			conn.SetReadDeadline(time.Now())
		})
		kind, data, err := conn.ReadMessage()
		stop()
		if err != nil {
			r.dropConn(conn)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read frame: %w", err)
		}
		if kind != websocket.BinaryMessage {
			continue
		}

		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode frame: %w", err)
		}
		return img, nil
	}
}

func (r *remoteReader) redial(ctx context.Context) error {
	r.mu.Lock()
	delay := r.delay
	r.delay = min(r.delay*2, reconnectMaxDelay)
	r.mu.Unlock()

	t := time.NewTimer(delay)
	select {
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	case <-t.C:
	}

	if err := r.dial(ctx); err != nil {
		log.Printf("remote camera dial error: %v (retry in %v)", err, min(delay*2, reconnectMaxDelay))
		return err
	}
	return nil
}

func (r *remoteReader) dropConn(conn *websocket.Conn) {
	r.mu.Lock()
	if r.conn == conn {
		r.conn = nil
		if r.pingCtx != nil {
			r.pingCtx()
			r.pingCtx = nil
		}
	}
	r.mu.Unlock()
	conn.Close()
}

// pingLoop sends periodic pings on the given connection. It exits when the
// context is cancelled or the connection changes.
func (r *remoteReader) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.Lock()
			cc := r.conn
			r.mu.Unlock()
			if cc != conn {
				return
			}
			r.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			r.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (r *remoteReader) Close() error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.closed = true
	if r.pingCtx != nil {
		r.pingCtx()
		r.pingCtx = nil
	}
	r.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}
