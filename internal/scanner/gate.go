package scanner

import (
	"sync/atomic"

	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/capture"
)

// Gate tag values, kept in the low bits of Gate.word.
const (
	gateIdle uint64 = iota
	gateArmed
	gateDelivered

	tagBits = 2
	tagMask = 1<<tagBits - 1
)

// Gate decides which detection events may produce a result. Each Arm starts
// a new generation; TryDeliver succeeds once per generation at most. The
// generation and the armed/delivered tag share one word so both are checked
// and flipped by a single compare-and-swap.
type Gate struct {
	word      atomic.Uint64
	confirmed atomic.Uint64
	symbology capture.Symbology
}

// NewGate accepts events of the given symbology only.
func NewGate(symbology capture.Symbology) *Gate {
	return &Gate{symbology: symbology}
}

// Arm starts a new generation and returns its number.
func (g *Gate) Arm() uint64 {
	for {
		old := g.word.Load()
		gen := old>>tagBits + 1
		if g.word.CompareAndSwap(old, gen<<tagBits|gateArmed) {
			return gen
		}
	}
}

// Disarm closes the current generation without delivering.
func (g *Gate) Disarm() {
	for {
		old := g.word.Load()
		if old&tagMask != gateArmed {
			return
		}
		if g.word.CompareAndSwap(old, old&^tagMask|gateIdle) {
			return
		}
	}
}

// Armed reports whether a result may still be delivered.
func (g *Gate) Armed() bool {
	return g.word.Load()&tagMask == gateArmed
}

// Generation returns the current generation number.
func (g *Gate) Generation() uint64 {
	return g.word.Load() >> tagBits
}

// Accept applies the event filters to the first object of a frame: it must
// have the gate's symbology and a non-empty payload. It does not consume
// the generation.
func (g *Gate) Accept(objects []capture.MetadataObject) (string, bool) {
	if len(objects) == 0 {
		return "", false
	}
	obj := objects[0]
	if obj.Type != g.symbology {
		return "", false
	}
	if obj.StringValue == "" {
		return "", false
	}
	return obj.StringValue, true
}

// TryConfirm claims the confirmation for generation gen. Only the first
// caller for a generation gets true, and never for an older generation.
func (g *Gate) TryConfirm(gen uint64) bool {
	for {
		last := g.confirmed.Load()
		if last >= gen {
			return false
		}
		if g.confirmed.CompareAndSwap(last, gen) {
			return true
		}
	}
}

// TryDeliver flips the gate from armed to delivered for generation gen.
// Only the first caller for a generation gets true.
func (g *Gate) TryDeliver(gen uint64) bool {
	return g.word.CompareAndSwap(gen<<tagBits|gateArmed, gen<<tagBits|gateDelivered)
}
