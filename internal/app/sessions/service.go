package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/deal-assistant/internal/adapters/storage/memory"
	"github.com/PabloGalante/deal-assistant/internal/app/intake"
	"github.com/PabloGalante/deal-assistant/internal/app/relay"
	"github.com/PabloGalante/deal-assistant/internal/app/voice"
	"github.com/PabloGalante/deal-assistant/internal/domain"
	"github.com/PabloGalante/deal-assistant/internal/observability"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrBusy                = errors.New("previous exchange still in flight")
	ErrEmptyInput          = errors.New("message is empty")
	ErrUnavailable         = errors.New("assistant unavailable")
	ErrUnsupported         = errors.New("voice input not supported")
	ErrNoSpeech            = errors.New("no speech recognized")
	ErrVariantNotSupported = errors.New("variant not supported")
)

// Deps are the collaborators a Service wires into each conversation.
// Chat and Recognizer are optional: without Chat the delegated variant is
// refused, without Recognizer voice input reports ErrUnsupported.
type Deps struct {
	Companies  domain.CompanyDirectory
	Deals      domain.DealCreator
	Chat       domain.ChatExchanger
	Recognizer domain.SpeechRecognizer
	Archive    domain.ArchiveStore
	Funnel     domain.FunnelStore
}

type Service struct {
	deps     Deps
	registry *memory.SessionStore[*Session]
	metrics  *observability.Metrics
	now      func() time.Time

	intakeOpts []intake.Option
	relayOpts  []relay.Option
}

type Option func(*Service)

// WithSessionTTL forgets sessions idle for longer than d.
func WithSessionTTL(d time.Duration) Option {
	return func(s *Service) { s.registry = memory.NewSessionStore[*Session](d) }
}

func WithIntakeOptions(opts ...intake.Option) Option {
	return func(s *Service) { s.intakeOpts = append(s.intakeOpts, opts...) }
}

func WithRelayOptions(opts ...relay.Option) Option {
	return func(s *Service) { s.relayOpts = append(s.relayOpts, opts...) }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(deps Deps, opts ...Option) *Service {
	s := &Service{
		deps:     deps,
		registry: memory.NewSessionStore[*Session](0),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registry.SetClock(s.now)
	return s
}

// Session is one live browser conversation.
type Session struct {
	ID        domain.SessionID
	UserID    domain.UserID
	Variant   domain.Variant
	CreatedAt time.Time

	local  *intake.Controller
	remote *relay.Controller
	voice  *voice.Input

	mu           sync.Mutex
	archivedUpTo int
}

func (s *Session) busy() bool {
	if s.local != nil {
		return s.local.Busy()
	}
	return s.remote.Busy()
}

func (s *Session) transcript() domain.Transcript {
	if s.local != nil {
		return s.local.Snapshot().Transcript
	}
	return s.remote.Snapshot().Transcript
}

type StartSessionInput struct {
	UserID  domain.UserID
	Variant domain.Variant
}

type StartSessionOutput struct {
	Session *Session
	Turns   []domain.Turn
}

func (s *Service) StartSession(ctx context.Context, in StartSessionInput) (*StartSessionOutput, error) {
	if in.Variant == "" {
		in.Variant = domain.VariantLocal
	}

	log := observability.LoggerFromContext(ctx).With(
		"user_id", in.UserID,
		"variant", in.Variant,
	)
	log.Info("starting new session")

	session := &Session{
		ID:        domain.SessionID(uuid.NewString()),
		UserID:    in.UserID,
		Variant:   in.Variant,
		CreatedAt: s.now(),
		voice:     voice.NewInput(s.deps.Recognizer),
	}

	var turns []domain.Turn
	switch in.Variant {
	case domain.VariantLocal:
		opts := append([]intake.Option{intake.WithMetrics(s.metrics), intake.WithClock(s.now)}, s.intakeOpts...)
		session.local = intake.NewController(s.deps.Companies, s.deps.Deals, opts...)
		snap := session.local.Snapshot()
		turns = snap.Transcript.Since(0)
		s.hit(ctx, session.ID, snap.State)

	case domain.VariantDelegated:
		if s.deps.Chat == nil {
			return nil, fmt.Errorf("%w: %s", ErrVariantNotSupported, in.Variant)
		}
		opts := append([]relay.Option{relay.WithMetrics(s.metrics), relay.WithClock(s.now)}, s.relayOpts...)
		session.remote = relay.NewController(s.deps.Chat, opts...)
		res, err := session.remote.Start(ctx)
		if err != nil {
			return nil, mapErr(err)
		}
		turns = res.Turns

	default:
		return nil, fmt.Errorf("%w: %q", ErrVariantNotSupported, in.Variant)
	}

	if err := s.registry.CreateSession(session.ID, session); err != nil {
		log.Error("failed to register session", "error", err)
		return nil, err
	}

	log.Info("session started", "session_id", session.ID)

	return &StartSessionOutput{Session: session, Turns: turns}, nil
}

type SendMessageInput struct {
	SessionID domain.SessionID
	Text      string
}

type SendMessageOutput struct {
	Turns []domain.Turn
	// State is the local conversation state; empty for delegated sessions.
	State   string
	Created *domain.CreatedDeal
}

func (s *Service) SendMessage(ctx context.Context, in SendMessageInput) (*SendMessageOutput, error) {
	session, err := s.session(in.SessionID)
	if err != nil {
		return nil, err
	}

	log := observability.LoggerFromContext(ctx).With(
		"session_id", session.ID,
		"user_id", session.UserID,
		"variant", session.Variant,
	)
	log.Info("sending message")

	out, err := s.submit(ctx, session, in.Text)
	if err != nil {
		log.Warn("message not accepted", "error", err)
		return nil, err
	}

	log.Info("send message completed", "state", out.State, "turns", len(out.Turns))
	return out, nil
}

func (s *Service) submit(ctx context.Context, session *Session, text string) (*SendMessageOutput, error) {
	if session.remote != nil {
		res, err := session.remote.Send(ctx, text)
		if err != nil {
			return nil, mapErr(err)
		}
		return &SendMessageOutput{Turns: res.Turns}, nil
	}

	res, err := session.local.Submit(ctx, text)
	if err != nil {
		return nil, mapErr(err)
	}
	for _, st := range res.Reached {
		s.hit(ctx, session.ID, st)
	}
	if res.Created != nil {
		s.archive(ctx, session, res.Created)
	}
	return &SendMessageOutput{Turns: res.Turns, State: res.State.String(), Created: res.Created}, nil
}

// SendVoice transcribes audio and submits the transcript as a typed message.
func (s *Service) SendVoice(ctx context.Context, sessionID domain.SessionID, audio domain.Audio) (string, *SendMessageOutput, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return "", nil, err
	}

	target := &voiceTarget{svc: s, session: session}
	transcript, err := session.voice.Capture(ctx, audio, target)
	if err != nil {
		return transcript, nil, mapErr(err)
	}
	return transcript, target.out, nil
}

type voiceTarget struct {
	svc     *Service
	session *Session
	out     *SendMessageOutput
}

func (t *voiceTarget) Busy() bool {
	return t.session.busy()
}

func (t *voiceTarget) SubmitText(ctx context.Context, text string) error {
	out, err := t.svc.submit(ctx, t.session, text)
	if err != nil {
		return err
	}
	t.out = out
	return nil
}

type Timeline struct {
	Session          *Session
	Turns            []domain.Turn
	State            string
	AwaitingResponse bool
	Listening        bool
	Unavailable      bool
}

func (s *Service) GetSessionTimeline(ctx context.Context, sessionID domain.SessionID) (*Timeline, error) {
	log := observability.LoggerFromContext(ctx).With("session_id", sessionID)

	session, err := s.session(sessionID)
	if err != nil {
		log.Warn("failed to get session", "error", err)
		return nil, err
	}

	tl := &Timeline{
		Session:          session,
		AwaitingResponse: session.busy(),
		Listening:        session.voice.Listening(),
	}
	if session.local != nil {
		snap := session.local.Snapshot()
		tl.Turns = snap.Transcript.Since(0)
		tl.State = snap.State.String()
	} else {
		snap := session.remote.Snapshot()
		tl.Turns = snap.Transcript.Since(0)
		tl.Unavailable = snap.Unavailable
	}

	log.Info("fetched session timeline", "turn_count", len(tl.Turns))
	return tl, nil
}

// ResetSession discards the conversation and starts a fresh one in place.
func (s *Service) ResetSession(ctx context.Context, sessionID domain.SessionID) (*StartSessionOutput, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	log := observability.LoggerFromContext(ctx).With("session_id", sessionID)

	var turns []domain.Turn
	if session.local != nil {
		conv := session.local.Reset()
		turns = conv.Transcript.Since(0)
		s.hit(ctx, session.ID, conv.State)
	} else {
		res, err := session.remote.Restart(ctx)
		if err != nil {
			log.Warn("session reset refused", "error", err)
			return nil, mapErr(err)
		}
		turns = res.Turns
	}

	session.mu.Lock()
	session.archivedUpTo = 0
	session.mu.Unlock()

	log.Info("session reset")
	return &StartSessionOutput{Session: session, Turns: turns}, nil
}

// FunnelStep is the number of sessions that reached State.
type FunnelStep struct {
	State    string `json:"state"`
	Sessions int    `json:"sessions"`
}

// Funnel returns session counts per local conversation state in flow order.
func (s *Service) Funnel(ctx context.Context) ([]FunnelStep, error) {
	if s.deps.Funnel == nil {
		return []FunnelStep{}, nil
	}
	counts, err := s.deps.Funnel.Counts(ctx)
	if err != nil {
		return nil, err
	}
	steps := make([]FunnelStep, 0, len(intake.States()))
	for _, st := range intake.States() {
		steps = append(steps, FunnelStep{State: st.String(), Sessions: counts[st.String()]})
	}
	return steps, nil
}

func (s *Service) ListArchive(ctx context.Context, userID domain.UserID, limit int) ([]*domain.ArchiveEntry, error) {
	if s.deps.Archive == nil {
		return []*domain.ArchiveEntry{}, nil
	}
	return s.deps.Archive.ListArchiveByUser(ctx, userID, limit)
}

// SweepIdle drops sessions past their idle TTL.
func (s *Service) SweepIdle() int {
	return s.registry.Sweep()
}

func (s *Service) session(id domain.SessionID) (*Session, error) {
	session, err := s.registry.GetSession(id)
	if errors.Is(err, memory.ErrSessionNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return session, err
}

// hit records a funnel step. Failures are logged, never surfaced.
func (s *Service) hit(ctx context.Context, id domain.SessionID, st intake.State) {
	if s.deps.Funnel == nil {
		return
	}
	if err := s.deps.Funnel.Hit(ctx, id, st.String()); err != nil {
		observability.LoggerFromContext(ctx).Error("failed to record funnel hit", "session_id", id, "state", st.String(), "error", err)
	}
}

func (s *Service) archive(ctx context.Context, session *Session, created *domain.CreatedDeal) {
	if s.deps.Archive == nil {
		return
	}

	transcript := session.transcript()
	session.mu.Lock()
	from := session.archivedUpTo
	if from > len(transcript) {
		from = 0
	}
	session.archivedUpTo = len(transcript)
	session.mu.Unlock()

	entry := &domain.ArchiveEntry{
		SessionID: session.ID,
		UserID:    session.UserID,
		Variant:   session.Variant,
		DealID:    created.ID,
		DealTitle: created.Title,
		Turns:     transcript.Since(from),
		CreatedAt: s.now(),
	}
	if err := s.deps.Archive.AppendArchiveEntry(ctx, entry); err != nil {
		observability.LoggerFromContext(ctx).Error("failed to archive conversation", "session_id", session.ID, "error", err)
	}
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, intake.ErrBusy), errors.Is(err, relay.ErrBusy),
		errors.Is(err, voice.ErrBusy), errors.Is(err, voice.ErrAlreadyListening),
		errors.Is(err, intake.ErrAwaitingResponse):
		return fmt.Errorf("%w: %v", ErrBusy, err)
	case errors.Is(err, relay.ErrEmptyInput):
		return fmt.Errorf("%w: %v", ErrEmptyInput, err)
	case errors.Is(err, relay.ErrUnavailable), errors.Is(err, relay.ErrNotStarted):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	case errors.Is(err, voice.ErrUnsupported):
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	case errors.Is(err, voice.ErrNoSpeech):
		return fmt.Errorf("%w: %v", ErrNoSpeech, err)
	default:
		return err
	}
}
