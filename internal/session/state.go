package session

import (
	"encoding/json"
	"time"
)

// Phase is the lifecycle position of a scan session.
type Phase int

const (
	Idle Phase = iota
	Starting
	Running
	Delivered
	Stopped
	Failed
)

var phaseNames = map[Phase]string{
	Idle:      "idle",
	Starting:  "starting",
	Running:   "running",
	Delivered: "delivered",
	Stopped:   "stopped",
	Failed:    "failed",
}

var phaseFromName = map[string]Phase{
	"idle":      Idle,
	"starting":  Starting,
	"running":   Running,
	"delivered": Delivered,
	"stopped":   Stopped,
	"failed":    Failed,
}

func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return "unknown"
}

func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Phase) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if v, ok := phaseFromName[s]; ok {
		*p = v
	}
	return nil
}

// State is a snapshot of one scan session.
type State struct {
	ID              string     `json:"id"`
	Device          string     `json:"device"`
	Phase           Phase      `json:"phase"`
	Armed           bool       `json:"armed"`
	OverlayAttached bool       `json:"overlayAttached"`
	StartedAt       time.Time  `json:"startedAt"`
	RunningAt       *time.Time `json:"runningAt,omitempty"`
	EndedAt         *time.Time `json:"endedAt,omitempty"`
	Result          string     `json:"result,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// Clone returns a deep copy of the State, duplicating pointer fields so the
// copy can be mutated independently of the original.
func (s *State) Clone() *State {
	c := *s
	if s.RunningAt != nil {
		t := *s.RunningAt
		c.RunningAt = &t
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return &c
}

// IsTerminal reports whether the session has finished.
func (s *State) IsTerminal() bool {
	return s.Phase == Delivered || s.Phase == Stopped || s.Phase == Failed
}

// Duration is how long the session ran, or has been running so far.
func (s *State) Duration(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if s.EndedAt != nil {
		return s.EndedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}
