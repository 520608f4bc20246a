package ws

import (
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/capture"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/session"
)

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgDelta    MessageType = "delta"
	MsgResult   MessageType = "result"
	MsgError    MessageType = "error"
	MsgHealth   MessageType = "health"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

type SnapshotPayload struct {
	Current *session.State          `json:"current,omitempty"`
	Recent  []*session.State        `json:"recent"`
	Health  *capture.HealthSnapshot `json:"health,omitempty"`
}

type DeltaPayload struct {
	Updates []*session.State `json:"updates"`
}

type ResultPayload struct {
	SessionID string `json:"sessionId"`
	Result    string `json:"result"`
}

type ErrorPayload struct {
	SessionID string `json:"sessionId,omitempty"`
	Kind      string `json:"kind"`
	Message   string `json:"message,omitempty"`
}
