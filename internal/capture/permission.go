package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// AuthorizationStatus is the camera access state granted by the host.
type AuthorizationStatus int

const (
	NotDetermined AuthorizationStatus = iota
	Restricted
	Denied
	Authorized
)

var authorizationNames = map[AuthorizationStatus]string{
	NotDetermined: "prompt",
	Restricted:    "restricted",
	Denied:        "denied",
	Authorized:    "granted",
}

func (a AuthorizationStatus) String() string {
	if s, ok := authorizationNames[a]; ok {
		return s
	}
	return "unknown"
}

func (a AuthorizationStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// ParseAuthorizationStatus maps a config value to a status.
func ParseAuthorizationStatus(name string) (AuthorizationStatus, error) {
	for status, n := range authorizationNames {
		if n == name {
			return status, nil
		}
	}
	return NotDetermined, fmt.Errorf("unknown camera permission %q", name)
}

// Authorizer answers whether the process may use the camera.
type Authorizer interface {
	AuthorizationStatus() AuthorizationStatus
	// RequestAccess asks the user. It may block until they answer.
	RequestAccess(ctx context.Context) bool
}

// PromptFunc asks the user for camera access.
type PromptFunc func(ctx context.Context) bool

// PolicyAuthorizer starts from a configured status and, when the status is
// NotDetermined, asks Prompt once and remembers the answer.
type PolicyAuthorizer struct {
	mu     sync.Mutex
	status AuthorizationStatus
	prompt PromptFunc
}

func NewPolicyAuthorizer(status AuthorizationStatus, prompt PromptFunc) *PolicyAuthorizer {
	return &PolicyAuthorizer{status: status, prompt: prompt}
}

func (p *PolicyAuthorizer) AuthorizationStatus() AuthorizationStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *PolicyAuthorizer) RequestAccess(ctx context.Context) bool {
	p.mu.Lock()
	if p.status != NotDetermined {
		granted := p.status == Authorized
		p.mu.Unlock()
		return granted
	}
	prompt := p.prompt
	p.mu.Unlock()

	granted := prompt != nil && prompt(ctx)
	if ctx.Err() != nil {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == NotDetermined {
		if granted {
			p.status = Authorized
		} else {
			p.status = Denied
		}
	}
	return p.status == Authorized
}

// Authorize resolves camera access, prompting only when the status is
// undetermined. A nil authorizer grants access.
func Authorize(ctx context.Context, a Authorizer) bool {
	if a == nil {
		return true
	}
	switch a.AuthorizationStatus() {
	case NotDetermined:
		return a.RequestAccess(ctx)
	case Restricted, Denied:
		return false
	case Authorized:
		return true
	default:
		return false
	}
}
