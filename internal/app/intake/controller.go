package intake

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/PabloGalante/deal-assistant/internal/domain"
	"github.com/PabloGalante/deal-assistant/internal/observability"
)

// ErrBusy is returned when a turn arrives while the previous exchange is
// still in flight. The turn is dropped without touching the transcript.
var ErrBusy = errors.New("intake: previous exchange still in flight")

const defaultCallTimeout = 15 * time.Second

// Controller owns one local conversation and performs the effects the
// Machine asks for. At most one exchange runs at a time.
type Controller struct {
	machine   *Machine
	companies domain.CompanyDirectory
	deals     domain.DealCreator
	metrics   *observability.Metrics
	timeout   time.Duration
	now       func() time.Time

	gate *semaphore.Weighted

	mu   sync.Mutex
	conv Conversation
}

type Option func(*Controller)

// WithPolicy replaces DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(c *Controller) { c.machine = NewMachine(p) }
}

// WithCallTimeout bounds each company lookup and deal creation call.
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

func NewController(companies domain.CompanyDirectory, deals domain.DealCreator, opts ...Option) *Controller {
	c := &Controller{
		machine:   NewMachine(DefaultPolicy()),
		companies: companies,
		deals:     deals,
		timeout:   defaultCallTimeout,
		now:       time.Now,
		gate:      semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.conv = c.machine.Start(c.now())
	return c
}

// Result describes what one submitted turn changed.
type Result struct {
	// Turns appended by this exchange, starting with the user's turn. Nil when
	// the conversation was reset before the exchange finished.
	Turns []domain.Turn
	// Reached lists the states entered during the exchange, in order.
	Reached []State
	State   State
	// Created is set when this turn produced a deal.
	Created *domain.CreatedDeal
	// Request is the submitted deal, set whenever a creation was attempted.
	Request *domain.DealRequest
}

// Submit processes one user turn. Collaborator failures are reported as
// assistant turns, not errors; the only errors are ErrBusy and
// ErrAwaitingResponse.
func (c *Controller) Submit(ctx context.Context, text string) (*Result, error) {
	if !c.gate.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer c.gate.Release(1)

	log := observability.LoggerFromContext(ctx)

	c.mu.Lock()
	start := len(c.conv.Transcript)
	gen := c.conv.Generation
	next, eff, err := c.machine.Receive(c.conv, text, c.now())
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.conv = next
	c.mu.Unlock()

	c.metrics.Turn(ctx, string(domain.VariantLocal))
	res := &Result{Reached: []State{next.State}}
	log.Info("intake turn received", "state", next.State.String(), "generation", gen)

	// Calls outlive the caller's cancellation; the timeout alone bounds them.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	switch e := eff.(type) {
	case LookupCompany:
		companies, err := c.companies.SearchCompanies(callCtx, e.Query)
		if err != nil {
			log.Error("company lookup failed", "query", e.Query, "error", err)
			c.metrics.Lookup(ctx, observability.OutcomeError)
		}
		c.apply(gen, start, res, func(conv Conversation) Conversation {
			return c.machine.ResolveLookup(conv, LookupResult{Query: e.Query, Companies: companies, Err: err}, c.now())
		})
		if err == nil {
			if res.State == AwaitingCompany {
				log.Info("company not found", "query", e.Query)
				c.metrics.Lookup(ctx, observability.OutcomeNotFound)
			} else {
				c.metrics.Lookup(ctx, observability.OutcomeOK)
			}
		}

	case SubmitDeal:
		req := e.Request
		res.Request = &req
		created, err := c.deals.CreateDeal(callCtx, req)
		if err != nil {
			log.Error("deal creation failed", "title", req.Title, "error", err)
			c.metrics.Submission(ctx, observability.OutcomeError)
		} else {
			log.Info("deal created", "deal_id", created.ID)
			c.metrics.Submission(ctx, observability.OutcomeOK)
		}
		c.apply(gen, start, res, func(conv Conversation) Conversation {
			return c.machine.ResolveSubmission(conv, SubmissionResult{Deal: created, Err: err}, c.now())
		})
		if err == nil && res.Turns != nil {
			res.Created = created
		}

	default:
		c.mu.Lock()
		res.Turns = c.conv.Transcript.Since(start)
		res.State = c.conv.State
		c.mu.Unlock()
	}

	return res, nil
}

// apply resolves an effect unless the conversation was reset meanwhile.
func (c *Controller) apply(gen uint64, start int, res *Result, resolve func(Conversation) Conversation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conv.Generation != gen {
		res.State = c.conv.State
		return
	}
	c.conv = resolve(c.conv)
	res.Reached = append(res.Reached, c.conv.State)
	res.State = c.conv.State
	res.Turns = c.conv.Transcript.Since(start)
}

// Snapshot returns the current conversation value.
func (c *Controller) Snapshot() Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv
}

// Busy reports whether an exchange is in flight.
func (c *Controller) Busy() bool {
	if c.gate.TryAcquire(1) {
		c.gate.Release(1)
		return false
	}
	return true
}

// Reset starts a fresh conversation. A response still in flight for the
// old conversation is discarded when it arrives.
func (c *Controller) Reset() Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conv = c.machine.Reset(c.conv, c.now())
	return c.conv
}
