package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/PabloGalante/deal-assistant/internal/domain"
	"github.com/PabloGalante/deal-assistant/internal/observability"
)

// StartMessage is sent with a null state to obtain the greeting.
const StartMessage = "start new deal"

const (
	MsgUnavailable    = "Sorry, the deal assistant is unavailable right now. Please reload and try again."
	MsgExchangeFailed = "Sorry, something went wrong. Please try again."
)

var (
	ErrBusy        = errors.New("relay: previous exchange still in flight")
	ErrEmptyInput  = errors.New("relay: empty message")
	ErrUnavailable = errors.New("relay: conversation unavailable")
	ErrNotStarted  = errors.New("relay: conversation not started")
)

const defaultCallTimeout = 30 * time.Second

// Controller keeps the transcript and the opaque state of one delegated
// conversation. All slot logic lives behind the ChatExchanger.
type Controller struct {
	chat    domain.ChatExchanger
	metrics *observability.Metrics
	timeout time.Duration
	now     func() time.Time

	gate *semaphore.Weighted

	mu          sync.Mutex
	transcript  domain.Transcript
	state       json.RawMessage
	started     bool
	unavailable bool
	generation  uint64
}

type Option func(*Controller)

func WithCallTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func NewController(chat domain.ChatExchanger, opts ...Option) *Controller {
	c := &Controller{
		chat:    chat,
		timeout: defaultCallTimeout,
		now:     time.Now,
		gate:    semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result holds the turns one exchange appended. Turns is nil when the
// conversation was reset while the call was outstanding.
type Result struct {
	Turns []domain.Turn
}

// Snapshot is a copy of the controller's state.
type Snapshot struct {
	Transcript  domain.Transcript
	State       json.RawMessage
	Unavailable bool
	Generation  uint64
}

// Start sends the bootstrap message. When it fails an apology is shown and
// every later Send returns ErrUnavailable until Reset.
func (c *Controller) Start(ctx context.Context) (*Result, error) {
	if !c.gate.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer c.gate.Release(1)
	return c.start(ctx)
}

// Restart resets the conversation and sends the bootstrap message again as
// one step. It returns ErrBusy, leaving the conversation untouched, while an
// exchange is in flight.
func (c *Controller) Restart(ctx context.Context) (*Result, error) {
	if !c.gate.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer c.gate.Release(1)

	c.Reset()
	return c.start(ctx)
}

// start must be called with the gate held.
func (c *Controller) start(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return &Result{}, nil
	}
	c.started = true
	gen := c.generation
	start := len(c.transcript)
	c.mu.Unlock()

	log := observability.LoggerFromContext(ctx)
	reply, err := c.exchange(ctx, StartMessage, nil)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return &Result{}, nil
	}
	if err != nil {
		log.Error("deal chat bootstrap failed", "error", err)
		c.unavailable = true
		c.transcript = c.transcript.Append(c.assistant(MsgUnavailable))
		return &Result{Turns: c.transcript.Since(start)}, nil
	}
	log.Info("deal chat started")
	c.transcript = c.transcript.Append(c.assistant(reply.AssistantMessage))
	c.state = cloneState(reply.State)
	return &Result{Turns: c.transcript.Since(start)}, nil
}

// Send relays one user turn. Remote failures become an assistant turn and
// leave the stored state as it was, so the next Send retries from the same
// point.
func (c *Controller) Send(ctx context.Context, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	if !c.gate.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer c.gate.Release(1)

	c.mu.Lock()
	switch {
	case c.unavailable:
		c.mu.Unlock()
		return nil, ErrUnavailable
	case !c.started:
		c.mu.Unlock()
		return nil, ErrNotStarted
	}
	gen := c.generation
	start := len(c.transcript)
	state := cloneState(c.state)
	c.transcript = c.transcript.Append(domain.Turn{Speaker: domain.SpeakerUser, Text: text, CreatedAt: c.now()})
	c.mu.Unlock()

	c.metrics.Turn(ctx, string(domain.VariantDelegated))
	log := observability.LoggerFromContext(ctx)

	reply, err := c.exchange(ctx, text, state)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		log.Info("discarding deal chat reply for reset conversation")
		return &Result{}, nil
	}
	if err != nil {
		log.Error("deal chat exchange failed", "error", err)
		c.transcript = c.transcript.Append(c.assistant(MsgExchangeFailed))
		return &Result{Turns: c.transcript.Since(start)}, nil
	}
	c.transcript = c.transcript.Append(c.assistant(reply.AssistantMessage))
	c.state = cloneState(reply.State)
	return &Result{Turns: c.transcript.Since(start)}, nil
}

func (c *Controller) exchange(ctx context.Context, message string, state json.RawMessage) (*domain.ChatReply, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	reply, err := c.chat.Exchange(callCtx, message, state)
	if err == nil && reply == nil {
		err = errors.New("relay: empty reply")
	}
	if err != nil {
		c.metrics.Exchange(ctx, observability.OutcomeError)
		return nil, err
	}
	c.metrics.Exchange(ctx, observability.OutcomeOK)
	return reply, nil
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Transcript:  c.transcript,
		State:       cloneState(c.state),
		Unavailable: c.unavailable,
		Generation:  c.generation,
	}
}

func (c *Controller) Busy() bool {
	if c.gate.TryAcquire(1) {
		c.gate.Release(1)
		return false
	}
	return true
}

// Reset forgets the transcript and state. Start must be called again.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.transcript = nil
	c.state = nil
	c.started = false
	c.unavailable = false
}

func (c *Controller) assistant(text string) domain.Turn {
	return domain.Turn{Speaker: domain.SpeakerAssistant, Text: text, CreatedAt: c.now()}
}

func cloneState(s json.RawMessage) json.RawMessage {
	if s == nil {
		return nil
	}
	return bytes.Clone(s)
}
