package dealchat

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/PabloGalante/deal-assistant/internal/app/intake"
	"github.com/PabloGalante/deal-assistant/internal/domain"
)

const tokenIssuer = "deal-assistant/deal-chat"

// ErrInvalidState is returned for state tokens that are malformed, expired
// or signed with another key.
var ErrInvalidState = errors.New("dealchat: invalid conversation state")

// stateClaims is the payload of the opaque state handed to the browser.
type stateClaims struct {
	jwt.RegisteredClaims
	Draft          draftClaims `json:"draft"`
	State          string      `json:"state"`
	CompanyMisses  int         `json:"company_misses,omitempty"`
	SubmitFailures int         `json:"submit_failures,omitempty"`
}

type draftClaims struct {
	Title     string   `json:"title,omitempty"`
	Company   string   `json:"company,omitempty"`
	Amount    *float64 `json:"amount,omitempty"`
	Stage     string   `json:"stage,omitempty"`
	CloseDate string   `json:"close_date,omitempty"`
}

// tokenCodec signs and verifies conversation state with HS256.
type tokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func (tc tokenCodec) encode(c intake.Conversation) (json.RawMessage, error) {
	now := tc.now().UTC()
	claims := stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tc.ttl)),
		},
		Draft: draftClaims{
			Title:     c.Draft.Title,
			Company:   string(c.Draft.Company),
			Amount:    c.Draft.Amount,
			Stage:     c.Draft.Stage,
			CloseDate: c.Draft.CloseDate,
		},
		State:          c.State.String(),
		CompanyMisses:  c.CompanyMisses,
		SubmitFailures: c.SubmitFailures,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tc.secret)
	if err != nil {
		return nil, fmt.Errorf("dealchat: sign state: %w", err)
	}
	return json.Marshal(signed)
}

func (tc tokenCodec) decode(raw json.RawMessage) (intake.Conversation, error) {
	var signed string
	if err := json.Unmarshal(raw, &signed); err != nil {
		return intake.Conversation{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	claims := &stateClaims{}
	_, err := jwt.ParseWithClaims(signed, claims,
		func(*jwt.Token) (any, error) { return tc.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tc.now),
	)
	if err != nil {
		return intake.Conversation{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	state, ok := intake.ParseState(claims.State)
	if !ok {
		return intake.Conversation{}, fmt.Errorf("%w: unknown state %q", ErrInvalidState, claims.State)
	}

	// Contacts are never carried: they are only committed once the deal exists.
	draft := domain.DealDraft{
		Title:     claims.Draft.Title,
		Company:   domain.CompanyRef(claims.Draft.Company),
		Amount:    claims.Draft.Amount,
		Stage:     claims.Draft.Stage,
		CloseDate: claims.Draft.CloseDate,
	}
	return intake.Conversation{
		Draft:          draft,
		State:          state,
		CompanyMisses:  claims.CompanyMisses,
		SubmitFailures: claims.SubmitFailures,
	}, nil
}
