package scanner

import (
	"log"
	"sync"
)

// Delegate is implemented by the caller to learn how a scan ended.
type Delegate interface {
	ShowError(kind ErrorKind)
	// ShowQRCodeResult is called at most once per session.
	ShowQRCodeResult(result string)
}

// DelegateFuncs adapts plain functions to Delegate. Nil fields are skipped.
type DelegateFuncs struct {
	OnError  func(kind ErrorKind)
	OnResult func(result string)
}

func (d DelegateFuncs) ShowError(kind ErrorKind) {
	if d.OnError != nil {
		d.OnError(kind)
	}
}

func (d DelegateFuncs) ShowQRCodeResult(result string) {
	if d.OnResult != nil {
		d.OnResult(result)
	}
}

// Feedback confirms a detection to the user (vibration, sound, bell).
type Feedback interface {
	Confirm()
}

// FeedbackFunc adapts a function to Feedback.
type FeedbackFunc func()

func (f FeedbackFunc) Confirm() { f() }

type nopFeedback struct{}

func (nopFeedback) Confirm() {}

// LogFeedback writes a line per confirmed detection, for hosts with no
// audio or haptics.
type LogFeedback struct {
	Logger *log.Logger
}

func (f LogFeedback) Confirm() {
	if f.Logger != nil {
		f.Logger.Println("qr code detected")
	}
}

// registry holds the single registered delegate. The controller never
// keeps a caller alive beyond the registration the caller controls.
type registry struct {
	mu       sync.Mutex
	delegate Delegate
	token    uint64
}

func (r *registry) set(d Delegate) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.token++
	token := r.token
	r.delegate = d
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.token == token {
			r.delegate = nil
		}
	}
}

func (r *registry) get() Delegate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.delegate
}
