// Package elicitation models one "ask the client for structured input" exchange
// as an explicit state machine: Idle, Requested, then exactly one of Accepted,
// Declined, Cancelled or Failed.
package elicitation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrFailed is wrapped by every Failed outcome: transport errors, malformed
	// responses, and waits that end without an answer.
	ErrFailed = errors.New("elicitation failed")
	// ErrNotIdle is returned when Request is called on a used session.
	ErrNotIdle = errors.New("elicitation session is not idle")
	// ErrInFlight is returned when an invocation tries to open a second
	// elicitation while one is still awaiting its answer.
	ErrInFlight = errors.New("another elicitation is already in flight for this invocation")
)

// Client response actions.
const (
	ActionAccept  = "accept"
	ActionDecline = "decline"
	ActionCancel  = "cancel"
)

// State is the lifecycle of one elicitation exchange.
type State int

const (
	Idle State = iota
	Requested
	Accepted
	Declined
	Cancelled
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requested:
		return "requested"
	case Accepted:
		return "accepted"
	case Declined:
		return "declined"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s >= Accepted }

// Response is the client's raw answer to an elicitation.
type Response struct {
	Action  string
	Content map[string]any
}

// Elicitor delivers a request to the connected client and waits for its
// answer. Implementations must return when ctx is done.
type Elicitor interface {
	Elicit(ctx context.Context, message string, requestedSchema map[string]any) (*Response, error)
}

// Outcome is the terminal result of a session.
type Outcome struct {
	State State
	Data  map[string]any
}

// Value returns the accepted value for field as a string.
func (o Outcome) Value(field string) string {
	if o.Data == nil {
		return ""
	}
	switch v := o.Data[field].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Options configure a Session. Zero Timeout waits until the client answers.
type Options struct {
	// Timeout bounds the wait for the client. Zero means wait until the
	// caller's context ends.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Session is a single-use elicitation exchange.
type Session struct {
	id       string
	elicitor Elicitor
	timeout  time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	state State
}

// NewSession starts in Idle. A nil elicitor fails the first Request.
func NewSession(elicitor Elicitor, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		id:       uuid.NewString(),
		elicitor: elicitor,
		timeout:  opts.Timeout,
		logger:   logger,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Request sends req to the client and blocks until the exchange reaches a
// terminal state. Accepted, Declined and Cancelled return a nil error; Failed
// returns an error wrapping ErrFailed.
func (s *Session) Request(ctx context.Context, req Request) (Outcome, error) {
	if err := req.validate(); err != nil {
		return Outcome{State: Idle}, err
	}

	s.mu.Lock()
	if s.state != Idle {
		st := s.state
		s.mu.Unlock()
		return Outcome{State: st}, ErrNotIdle
	}
	s.state = Requested
	s.mu.Unlock()

	s.logger.Debug("elicitation requested", "session", s.id, "field", req.Field, "choices", len(req.Choices))

	if s.elicitor == nil {
		return s.fail(errors.New("client does not support elicitation"))
	}

	waitCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.elicitor.Elicit(waitCtx, req.Message, req.Schema())
	if err != nil {
		return s.fail(fmt.Errorf("transport: %w", err))
	}
	if waitCtx.Err() != nil {
		return s.fail(fmt.Errorf("no answer: %w", waitCtx.Err()))
	}
	if resp == nil {
		return s.fail(errors.New("empty response"))
	}

	switch resp.Action {
	case ActionAccept:
		if err := req.check(resp.Content); err != nil {
			return s.fail(err)
		}
		return s.resolve(Outcome{State: Accepted, Data: resp.Content}), nil
	case ActionDecline:
		return s.resolve(Outcome{State: Declined}), nil
	case ActionCancel:
		return s.resolve(Outcome{State: Cancelled}), nil
	default:
		return s.fail(fmt.Errorf("unknown action %q", resp.Action))
	}
}

func (s *Session) resolve(out Outcome) Outcome {
	s.mu.Lock()
	s.state = out.State
	s.mu.Unlock()
	s.logger.Debug("elicitation resolved", "session", s.id, "state", out.State)
	return out
}

func (s *Session) fail(cause error) (Outcome, error) {
	s.resolve(Outcome{State: Failed})
	s.logger.Warn("elicitation failed", "session", s.id, "err", cause)
	return Outcome{State: Failed}, fmt.Errorf("%w: %w", ErrFailed, cause)
}
