// Package chat runs a conversation with the completion endpoint. A session
// allows one outstanding request at a time and keeps an ordered transcript.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/linesmerrill/adr-report-api/completion"
	"github.com/linesmerrill/adr-report-api/models"
)

// Fallback bot messages, one per failure category
const (
	MalformedFallback = "Sorry, I couldn't get a response from the AI."
	TransportFallback = "There was an error connecting to the AI. Please try again."
	CanceledFallback  = "The request was cancelled before the AI replied. Please try again."
)

var (
	// ErrEmptyTurn is returned for text that is empty after trimming
	ErrEmptyTurn = errors.New("message text is empty")
	// ErrTurnInFlight is returned while a previous message awaits its reply
	ErrTurnInFlight = errors.New("a reply is already pending")
	// ErrSessionClosed is returned by Send after Close, and is the result of a
	// reply that arrived after Close
	ErrSessionClosed = errors.New("chat session closed")
)

// Session is a single chat conversation. The zero value is not usable; use New.
type Session struct {
	mu         sync.Mutex
	completer  completion.Completer
	transcript []models.ChatMessage
	synthetic  map[int]bool
	pending    bool
	closed     bool
	cancel     context.CancelFunc

	history bool
	now     func() time.Time
	log     *zap.SugaredLogger
}

// Option configures a Session
type Option func(*Session)

// WithClock sets the clock used for message timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// WithHistory sends the whole transcript with every request instead of only
// the newest user message
func WithHistory(enabled bool) Option {
	return func(s *Session) {
		s.history = enabled
	}
}

// WithLogger replaces the global zap logger
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Session) {
		s.log = log
	}
}

// New returns an idle session with an empty transcript
func New(completer completion.Completer, opts ...Option) *Session {
	s := &Session{
		completer: completer,
		synthetic: map[int]bool{},
		now:       time.Now,
		log:       zap.S(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result is the outcome of one request. Message is the bot message that was
// appended. Err is the completion failure when Message is a fallback, or
// ErrSessionClosed when nothing was appended.
type Result struct {
	Message models.ChatMessage
	Err     error
}

// Reply resolves once the bot message for a Send has been appended
type Reply struct {
	// User is the message appended by Send
	User   models.ChatMessage
	done   chan struct{}
	result Result
}

// Done is closed when the result is available
func (r *Reply) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the reply resolves or ctx ends. Giving up on the wait
// does not cancel the request.
func (r *Reply) Wait(ctx context.Context) (Result, error) {
	select {
	case <-r.done:
		return r.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (r *Reply) resolve(res Result) {
	r.result = res
	close(r.done)
}

// Send appends the user's message and requests a completion for it. ctx
// cancels the request; a cancelled request still produces a fallback message.
func (s *Session) Send(ctx context.Context, text string) (*Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyTurn
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.pending {
		s.mu.Unlock()
		return nil, ErrTurnInFlight
	}
	user := s.appendLocked(models.SenderUser, text, false)
	s.pending = true
	turns := s.turnsLocked()
	reqCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	reply := &Reply{User: user, done: make(chan struct{})}
	go s.complete(reqCtx, cancel, turns, reply)
	return reply, nil
}

func (s *Session) complete(ctx context.Context, cancel context.CancelFunc, turns []completion.Turn, reply *Reply) {
	defer cancel()
	text, err := s.completer.Complete(ctx, turns)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.log.Debugw("discarding completion for closed chat session", "error", err)
		reply.resolve(Result{Err: ErrSessionClosed})
		return
	}
	var msg models.ChatMessage
	if err != nil {
		fallback := fallbackText(err)
		s.log.Warnw("completion failed", "error", err, "fallback", fallback)
		msg = s.appendLocked(models.SenderBot, fallback, true)
	} else {
		msg = s.appendLocked(models.SenderBot, text, false)
	}
	s.pending = false
	s.cancel = nil
	s.mu.Unlock()

	reply.resolve(Result{Message: msg, Err: err})
}

func fallbackText(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CanceledFallback
	case completion.IsMalformed(err):
		return MalformedFallback
	default:
		return TransportFallback
	}
}

func (s *Session) appendLocked(sender models.Sender, text string, synthetic bool) models.ChatMessage {
	msg := models.ChatMessage{
		Sequence:  len(s.transcript),
		Sender:    sender,
		Text:      text,
		CreatedAt: s.now().UTC(),
	}
	s.transcript = append(s.transcript, msg)
	if synthetic {
		s.synthetic[msg.Sequence] = true
	}
	return msg
}

func (s *Session) turnsLocked() []completion.Turn {
	last := s.transcript[len(s.transcript)-1]
	if !s.history {
		return []completion.Turn{{Role: completion.RoleUser, Text: last.Text}}
	}
	kept := lo.Filter(s.transcript, func(m models.ChatMessage, _ int) bool {
		return !s.synthetic[m.Sequence]
	})
	return lo.Map(kept, func(m models.ChatMessage, _ int) completion.Turn {
		role := completion.RoleUser
		if m.Sender == models.SenderBot {
			role = completion.RoleModel
		}
		return completion.Turn{Role: role, Text: m.Text}
	})
}

// Transcript returns a copy of the messages so far
func (s *Session) Transcript() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ChatMessage{}, s.transcript...)
}

// Pending reports whether a request is in flight
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// State returns the transcript and pending flag as one consistent snapshot
func (s *Session) State() models.ChatState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.ChatState{
		Transcript: append([]models.ChatMessage{}, s.transcript...),
		Pending:    s.pending,
	}
}

// Close tears the session down. An in-flight request is cancelled and its
// result is dropped. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
