package intake

import (
	"errors"
	"strings"
	"time"

	"github.com/PabloGalante/deal-assistant/internal/domain"
)

// ErrAwaitingResponse is returned by Receive while an effect from the
// previous turn has not been resolved yet.
var ErrAwaitingResponse = errors.New("intake: awaiting response to previous turn")

// State says which slot the conversation is waiting for.
type State int

const (
	AwaitingTitle State = iota
	AwaitingCompany
	AwaitingAmount
	AwaitingStage
	AwaitingCloseDate
	AwaitingContacts
	Submitting
	// Done follows a successful submission and behaves like AwaitingTitle.
	Done
)

func (s State) String() string {
	switch s {
	case AwaitingTitle:
		return "awaiting_title"
	case AwaitingCompany:
		return "awaiting_company"
	case AwaitingAmount:
		return "awaiting_amount"
	case AwaitingStage:
		return "awaiting_stage"
	case AwaitingCloseDate:
		return "awaiting_close_date"
	case AwaitingContacts:
		return "awaiting_contacts"
	case Submitting:
		return "submitting"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, bool) {
	for st := AwaitingTitle; st <= Done; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}

// States lists every state in flow order.
func States() []State {
	return []State{AwaitingTitle, AwaitingCompany, AwaitingAmount, AwaitingStage, AwaitingCloseDate, AwaitingContacts, Submitting, Done}
}

// slotStates maps the first pending slot of a draft to the state waiting for it.
var slotStates = map[domain.Slot]State{
	domain.SlotTitle:     AwaitingTitle,
	domain.SlotCompany:   AwaitingCompany,
	domain.SlotAmount:    AwaitingAmount,
	domain.SlotStage:     AwaitingStage,
	domain.SlotCloseDate: AwaitingCloseDate,
	domain.SlotContacts:  AwaitingContacts,
	domain.SlotNone:      Submitting,
}

// transitions maps an input-gathering state to the state entered once its
// slot has been filled.
var transitions = map[State]State{
	AwaitingTitle:     AwaitingCompany,
	AwaitingCompany:   AwaitingAmount,
	AwaitingAmount:    AwaitingStage,
	AwaitingStage:     AwaitingCloseDate,
	AwaitingCloseDate: AwaitingContacts,
	AwaitingContacts:  Submitting,
}

// StateFor derives the waiting state from the draft alone.
func StateFor(d domain.DealDraft) State {
	return slotStates[d.NextSlot()]
}

// Effect is an outbound call the caller must perform and feed back through
// ResolveLookup or ResolveSubmission.
type Effect interface {
	isEffect()
}

// LookupCompany asks the caller to search companies by Query.
type LookupCompany struct {
	Query string
}

// SubmitDeal asks the caller to create the deal.
type SubmitDeal struct {
	Request domain.DealRequest
}

func (LookupCompany) isEffect() {}
func (SubmitDeal) isEffect()    {}

// LookupResult carries the outcome of a LookupCompany effect.
type LookupResult struct {
	Query     string
	Companies []domain.Company
	Err       error
}

// SubmissionResult carries the outcome of a SubmitDeal effect.
type SubmissionResult struct {
	Deal *domain.CreatedDeal
	Err  error
}

// Conversation is the full dialogue state. It is a value: every Machine
// method returns a new Conversation and leaves its argument untouched.
type Conversation struct {
	Transcript domain.Transcript
	Draft      domain.DealDraft
	State      State

	// AwaitingResponse is set while an effect is outstanding.
	AwaitingResponse bool

	// Generation changes only on Reset. Effect results computed for an
	// older generation must be dropped.
	Generation uint64
	// Version changes on every transition.
	Version uint64

	CompanyMisses  int
	SubmitFailures int
}

// Policy holds the validation choices for lenient slots.
type Policy struct {
	// StrictAmount re-prompts when the amount is not a finite number
	// instead of storing NaN.
	StrictAmount bool
	// ValidateCloseDate re-prompts unless the close date parses as YYYY-MM-DD.
	ValidateCloseDate bool
	// Stages restricts the stage slot to these labels (case-insensitive).
	// Empty accepts any text.
	Stages []string
}

// DefaultPolicy rejects unusable amounts and accepts any stage or date text.
func DefaultPolicy() Policy {
	return Policy{StrictAmount: true}
}

// Machine holds the transition rules. It has no mutable state and is safe
// for concurrent use.
type Machine struct {
	policy Policy
}

func NewMachine(policy Policy) *Machine {
	return &Machine{policy: policy}
}

// Start returns a new conversation with the greeting already asked.
func (m *Machine) Start(now time.Time) Conversation {
	return Conversation{
		Transcript: domain.Transcript{}.Append(assistant(PromptTitle, now)),
		State:      AwaitingTitle,
	}
}

// Reset discards the draft and transcript and starts over under a new generation.
func (m *Machine) Reset(c Conversation, now time.Time) Conversation {
	next := m.Start(now)
	next.Generation = c.Generation + 1
	next.Version = c.Version + 1
	return next
}

// Receive applies one user turn. When the slot can be filled locally the
// returned effect is nil; otherwise the caller must run the effect and call
// the matching Resolve method.
func (m *Machine) Receive(c Conversation, raw string, now time.Time) (Conversation, Effect, error) {
	if c.AwaitingResponse {
		return c, nil, ErrAwaitingResponse
	}

	next := c
	next.Version++
	next.Transcript = c.Transcript.Append(domain.Turn{Speaker: domain.SpeakerUser, Text: raw, CreatedAt: now})

	text := strings.TrimSpace(raw)
	current := StateFor(c.Draft)

	say := func(msg string) {
		next.Transcript = next.Transcript.Append(assistant(msg, now))
	}
	advance := func(d domain.DealDraft, prompt string) {
		next.Draft = d
		next.State = transitions[current]
		say(prompt)
	}
	stay := func(msg string) {
		next.State = current
		say(msg)
	}

	switch current {
	case AwaitingTitle:
		if text == "" {
			stay(MsgTitleEmpty)
			break
		}
		advance(c.Draft.WithTitle(text), PromptCompany)

	case AwaitingCompany:
		if text == "" {
			stay(MsgCompanyEmpty)
			break
		}
		next.State = current
		next.AwaitingResponse = true
		return next, LookupCompany{Query: text}, nil

	case AwaitingAmount:
		amount := ParseAmount(raw)
		if m.policy.StrictAmount && !IsFiniteAmount(amount) {
			stay(MsgAmountInvalid)
			break
		}
		advance(c.Draft.WithAmount(amount), PromptStage)

	case AwaitingStage:
		if text == "" {
			stay(MsgStageEmpty)
			break
		}
		stage, ok := m.acceptStage(text)
		if !ok {
			stay(msgStageInvalid(m.policy.Stages))
			break
		}
		advance(c.Draft.WithStage(stage), PromptCloseDate)

	case AwaitingCloseDate:
		if text == "" {
			stay(MsgCloseDateEmpty)
			break
		}
		if m.policy.ValidateCloseDate && !ValidCloseDate(text) {
			stay(MsgCloseDateInvalid)
			break
		}
		advance(c.Draft.WithCloseDate(text), PromptContacts)

	case AwaitingContacts:
		// Contacts stay out of the draft until the CRM accepts the deal, so a
		// failed submission leaves this slot pending.
		req := c.Draft.Request(ParseContacts(raw))
		next.State = transitions[current]
		next.AwaitingResponse = true
		say(MsgCreating)
		return next, SubmitDeal{Request: req}, nil
	}

	return next, nil, nil
}

// ResolveLookup folds a company search outcome into the conversation.
// Results that do not answer an outstanding lookup are ignored.
func (m *Machine) ResolveLookup(c Conversation, res LookupResult, now time.Time) Conversation {
	if !c.AwaitingResponse || c.State != AwaitingCompany {
		return c
	}

	next := c
	next.Version++
	next.AwaitingResponse = false

	if res.Err != nil {
		next.Transcript = c.Transcript.Append(assistant(MsgLookupError, now))
		return next
	}

	company, ok := MatchCompany(res.Companies, res.Query)
	if !ok {
		next.CompanyMisses++
		next.Transcript = c.Transcript.Append(assistant(MsgCompanyNotFound, now))
		return next
	}

	next.Draft = c.Draft.WithCompany(company.ID)
	next.State = transitions[AwaitingCompany]
	next.CompanyMisses = 0
	next.Transcript = c.Transcript.Append(assistant(PromptAmount, now))
	return next
}

// ResolveSubmission folds a deal creation outcome into the conversation.
// Success clears the draft; failure returns to AwaitingContacts with the
// draft unchanged.
func (m *Machine) ResolveSubmission(c Conversation, res SubmissionResult, now time.Time) Conversation {
	if !c.AwaitingResponse || c.State != Submitting {
		return c
	}

	next := c
	next.Version++
	next.AwaitingResponse = false

	if res.Err != nil {
		next.SubmitFailures++
		next.State = AwaitingContacts
		next.Transcript = c.Transcript.Append(assistant(MsgCreateFailed, now))
		return next
	}

	next.Draft = domain.DealDraft{}
	next.State = Done
	next.CompanyMisses = 0
	next.SubmitFailures = 0
	next.Transcript = c.Transcript.Append(assistant(MsgCreated, now))
	return next
}

// MatchCompany returns the first company whose name equals query, ignoring case.
func MatchCompany(companies []domain.Company, query string) (domain.Company, bool) {
	query = strings.TrimSpace(query)
	for _, c := range companies {
		if strings.EqualFold(c.Name, query) {
			return c, true
		}
	}
	return domain.Company{}, false
}

func (m *Machine) acceptStage(text string) (string, bool) {
	if len(m.policy.Stages) == 0 {
		return text, true
	}
	for _, s := range m.policy.Stages {
		if strings.EqualFold(s, text) {
			return s, true
		}
	}
	return "", false
}

func assistant(text string, now time.Time) domain.Turn {
	return domain.Turn{Speaker: domain.SpeakerAssistant, Text: text, CreatedAt: now}
}
