package capture

import (
	"fmt"
	"image"
	"log"
	"sync"
)

// Decoder finds machine-readable codes in a frame.
type Decoder interface {
	Decode(img image.Image) ([]MetadataObject, error)
	// Symbologies lists what the decoder can recognise.
	Symbologies() []Symbology
}

// ObjectsDelegate receives the codes found in each processed frame. It is
// called on the output's own decoding goroutine, never on the caller's.
type ObjectsDelegate interface {
	MetadataOutput(out *MetadataOutput, objects []MetadataObject)
}

// MetadataOutput decodes session frames and reports the codes it finds.
// Frames arriving while a decode is in progress replace each other, so at
// most one frame waits and decoding never falls behind the stream. Every
// reported object carries the run of the frame it was found in.
type MetadataOutput struct {
	decoder Decoder

	mu       sync.RWMutex
	delegate ObjectsDelegate
	types    map[Symbology]bool

	frames    chan frame
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewMetadataOutput starts the decoding goroutine. Call Close to stop it.
func NewMetadataOutput(decoder Decoder) *MetadataOutput {
	o := &MetadataOutput{
		decoder: decoder,
		types:   make(map[Symbology]bool),
		frames:  make(chan frame, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go o.decodeLoop()
	return o
}

// SetObjectsDelegate installs the receiver of detection events. Passing nil
// stops delivery.
func (o *MetadataOutput) SetObjectsDelegate(d ObjectsDelegate) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delegate = d
}

// AvailableObjectTypes lists the symbologies this output can report.
func (o *MetadataOutput) AvailableObjectTypes() []Symbology {
	if o.decoder == nil {
		return nil
	}
	return o.decoder.Symbologies()
}

// SetObjectTypes restricts reporting to the given symbologies. Until it is
// called nothing is reported.
func (o *MetadataOutput) SetObjectTypes(types []Symbology) error {
	available := make(map[Symbology]bool)
	for _, s := range o.AvailableObjectTypes() {
		available[s] = true
	}
	next := make(map[Symbology]bool, len(types))
	for _, s := range types {
		if !available[s] {
			return fmt.Errorf("unsupported metadata object type %s", s)
		}
		next[s] = true
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.types = next
	return nil
}

// ObjectTypes returns the symbologies currently reported.
func (o *MetadataOutput) ObjectTypes() []Symbology {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Symbology, 0, len(o.types))
	for s := range o.types {
		out = append(out, s)
	}
	return out
}

type frame struct {
	img image.Image
	run uint64
}

// ConsumeFrame queues img for decoding, replacing any frame still waiting.
func (o *MetadataOutput) ConsumeFrame(img image.Image, run uint64) {
	select {
	case <-o.quit:
		return
	default:
	}
	f := frame{img: img, run: run}
	for {
		select {
		case o.frames <- f:
			return
		default:
		}
		// Mailbox full: drop the stale frame and retry.
		select {
		case <-o.frames:
		default:
		}
	}
}

// Flush discards the frame waiting to be decoded, if any. A decode already
// in progress still completes.
func (o *MetadataOutput) Flush() {
	select {
	case <-o.frames:
	default:
	}
}

// Close stops the decoding goroutine and waits for it.
func (o *MetadataOutput) Close() {
	o.closeOnce.Do(func() { close(o.quit) })
	<-o.done
}

func (o *MetadataOutput) decodeLoop() {
	defer close(o.done)
	for {
		select {
		case <-o.quit:
			return
		case f := <-o.frames:
			o.process(f)
		}
	}
}

func (o *MetadataOutput) process(f frame) {
	if o.decoder == nil || f.img == nil {
		return
	}
	objects, err := o.decoder.Decode(f.img)
	if err != nil {
		log.Printf("metadata decode error: %v", err)
		return
	}

	o.mu.RLock()
	delegate := o.delegate
	var wanted []MetadataObject
	for _, obj := range objects {
		if o.types[obj.Type] {
			obj.Run = f.run
			wanted = append(wanted, obj)
		}
	}
	o.mu.RUnlock()

	if delegate != nil && len(wanted) > 0 {
		delegate.MetadataOutput(o, wanted)
	}
}
