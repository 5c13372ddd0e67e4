// Package coordinator decides which workspace a signed-in user is looking at:
// the report form or the chat. Exactly one of them is mounted at a time.
package coordinator

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/linesmerrill/adr-report-api/chat"
	"github.com/linesmerrill/adr-report-api/models"
	"github.com/linesmerrill/adr-report-api/report"
)

// View names a workspace
type View string

const (
	ViewComposingReport View = "composing-report"
	ViewChatting        View = "chatting"
)

// InitialView is mounted when a coordinator is created
const InitialView = ViewComposingReport

var (
	// ErrViewNotActive is returned when asking for the workspace that is not mounted
	ErrViewNotActive = errors.New("view not active")
	// ErrUnknownView is returned by ParseView
	ErrUnknownView = errors.New("unknown view")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("workspace closed")
)

// ParseView converts a wire value into a View
func ParseView(s string) (View, error) {
	switch View(s) {
	case ViewComposingReport, ViewChatting:
		return View(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownView, s)
}

// Factory builds fresh workspace instances
type Factory interface {
	NewComposer() *report.Composer
	NewChat() *chat.Session
}

// Coordinator owns the mounted workspace for one identity
type Coordinator struct {
	mu       sync.Mutex
	identity models.Identity
	factory  Factory
	current  View
	composer *report.Composer
	chat     *chat.Session
	closed   bool
}

// New mounts the initial view for identity
func New(identity models.Identity, factory Factory) *Coordinator {
	c := &Coordinator{identity: identity, factory: factory}
	c.mountLocked(InitialView)
	return c
}

// Identity returns who this workspace belongs to
func (c *Coordinator) Identity() models.Identity {
	return c.identity
}

// CurrentUser is the signed-in username
func (c *Coordinator) CurrentUser() string {
	return c.identity.CurrentUser
}

// Logout ends the session through the capability handed in at construction
func (c *Coordinator) Logout() error {
	if c.identity.Logout == nil {
		return nil
	}
	return c.identity.Logout()
}

// Current returns the mounted view
func (c *Coordinator) Current() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Transition switches to the given view. Switching to the view already
// mounted does nothing. The view being left is torn down and its state lost.
func (c *Coordinator) Transition(to View) error {
	if _, err := ParseView(string(to)); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.current == to {
		return nil
	}
	zap.S().Debugw("switching view", "user", c.identity.CurrentUser, "from", c.current, "to", to)
	c.unmountLocked()
	c.mountLocked(to)
	return nil
}

func (c *Coordinator) mountLocked(v View) {
	c.current = v
	switch v {
	case ViewComposingReport:
		c.composer = c.factory.NewComposer()
	case ViewChatting:
		c.chat = c.factory.NewChat()
	}
}

func (c *Coordinator) unmountLocked() {
	if c.chat != nil {
		c.chat.Close()
	}
	c.chat = nil
	c.composer = nil
}

// Composer returns the mounted report composer
func (c *Coordinator) Composer() (*report.Composer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.composer == nil {
		return nil, ErrViewNotActive
	}
	return c.composer, nil
}

// Chat returns the mounted chat session
func (c *Coordinator) Chat() (*chat.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.chat == nil {
		return nil, ErrViewNotActive
	}
	return c.chat, nil
}

// Close unmounts everything. Further calls fail with ErrClosed.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.unmountLocked()
}
