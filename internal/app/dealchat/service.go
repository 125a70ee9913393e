package dealchat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/PabloGalante/deal-assistant/internal/app/intake"
	"github.com/PabloGalante/deal-assistant/internal/app/relay"
	"github.com/PabloGalante/deal-assistant/internal/domain"
	"github.com/PabloGalante/deal-assistant/internal/observability"
)

const (
	defaultStateTTL    = 24 * time.Hour
	defaultCallTimeout = 15 * time.Second
)

// Service runs the slot-filling machine on the server. The whole
// conversation state travels with the client as a signed token, so the
// service keeps nothing between calls.
type Service struct {
	machine   *intake.Machine
	companies domain.CompanyDirectory
	deals     domain.DealCreator
	codec     tokenCodec
	metrics   *observability.Metrics
	timeout   time.Duration
}

type Option func(*Service)

// WithPolicy sets the validation policy. Amounts are always checked: a
// non-finite amount cannot be carried in the state token.
func WithPolicy(p Policy) Option {
	return func(s *Service) {
		p.StrictAmount = true
		s.machine = intake.NewMachine(p)
	}
}

// Policy is intake.Policy, re-exported for callers wiring the service.
type Policy = intake.Policy

func WithStateTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.codec.ttl = d
		}
	}
}

func WithCallTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.codec.now = now }
}

func NewService(companies domain.CompanyDirectory, deals domain.DealCreator, secret []byte, opts ...Option) (*Service, error) {
	if len(secret) == 0 {
		return nil, errors.New("dealchat: state secret is required")
	}
	s := &Service{
		machine:   intake.NewMachine(intake.DefaultPolicy()),
		companies: companies,
		deals:     deals,
		codec:     tokenCodec{secret: secret, ttl: defaultStateTTL, now: time.Now},
		timeout:   defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Exchange answers one chat message. A nil or null state starts a new
// conversation; the start message itself only yields the greeting.
func (s *Service) Exchange(ctx context.Context, message string, state json.RawMessage) (*domain.ChatReply, error) {
	log := observability.LoggerFromContext(ctx)
	now := s.codec.now()

	var conv intake.Conversation
	if isNull(state) {
		conv = s.machine.Start(now)
		if isStartMessage(message) {
			return s.reply(conv, 0)
		}
	} else {
		var err error
		conv, err = s.codec.decode(state)
		if err != nil {
			log.Warn("rejected deal chat state", "error", err)
			return nil, err
		}
	}

	s.metrics.Turn(ctx, string(domain.VariantDelegated))

	start := len(conv.Transcript)
	next, eff, err := s.machine.Receive(conv, message, now)
	if err != nil {
		return nil, err
	}
	// Skip the echoed user turn.
	first := start + 1

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	switch e := eff.(type) {
	case intake.LookupCompany:
		companies, err := s.companies.SearchCompanies(callCtx, e.Query)
		next = s.machine.ResolveLookup(next, intake.LookupResult{Query: e.Query, Companies: companies, Err: err}, s.codec.now())
		switch {
		case err != nil:
			log.Error("company lookup failed", "query", e.Query, "error", err)
			s.metrics.Lookup(ctx, observability.OutcomeError)
		case next.State == intake.AwaitingCompany:
			s.metrics.Lookup(ctx, observability.OutcomeNotFound)
		default:
			s.metrics.Lookup(ctx, observability.OutcomeOK)
		}

	case intake.SubmitDeal:
		created, err := s.deals.CreateDeal(callCtx, e.Request)
		if err != nil {
			log.Error("deal creation failed", "title", e.Request.Title, "error", err)
			s.metrics.Submission(ctx, observability.OutcomeError)
		} else {
			log.Info("deal created", "deal_id", created.ID)
			s.metrics.Submission(ctx, observability.OutcomeOK)
		}
		next = s.machine.ResolveSubmission(next, intake.SubmissionResult{Deal: created, Err: err}, s.codec.now())
	}

	log.Info("deal chat turn", "state", next.State.String())
	return s.reply(next, first)
}

func (s *Service) reply(c intake.Conversation, from int) (*domain.ChatReply, error) {
	token, err := s.codec.encode(c)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, t := range c.Transcript.Since(from) {
		if t.Speaker == domain.SpeakerAssistant {
			lines = append(lines, t.Text)
		}
	}
	return &domain.ChatReply{AssistantMessage: strings.Join(lines, "\n"), State: token}, nil
}

func isNull(state json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(state))
	return trimmed == "" || trimmed == "null"
}

func isStartMessage(message string) bool {
	m := strings.TrimSpace(message)
	return m == "" || strings.EqualFold(m, relay.StartMessage)
}
