package crmapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PabloGalante/deal-assistant/internal/domain"
	"github.com/PabloGalante/deal-assistant/internal/observability"
)

const (
	maxErrorBody = 2048
	// maxKnownIDs bounds how many company id kinds are remembered.
	maxKnownIDs = 4096
)

// Client talks to the CRM REST API: company search and deal creation.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client

	// kinds remembers whether a company id arrived as a JSON string or number
	// so it can be sent back the same way. Oldest entries are evicted first.
	mu        sync.Mutex
	kinds     map[domain.CompanyRef]idKind
	kindOrder []domain.CompanyRef
}

type idKind int

const (
	kindNumber idKind = iota
	kindString
)

func NewClient(baseURL string, opts ...func(*Client)) *Client {
	c := &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		kinds:      make(map[domain.CompanyRef]idKind),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithToken sends "Authorization: Bearer <token>" on every call.
func WithToken(token string) func(*Client) {
	return func(c *Client) {
		c.Token = strings.TrimSpace(token)
	}
}

func WithTimeout(d time.Duration) func(*Client) {
	return func(c *Client) {
		if d > 0 {
			c.HTTPClient.Timeout = d
		}
	}
}

func WithHTTPClient(hc *http.Client) func(*Client) {
	return func(c *Client) {
		if hc != nil {
			c.HTTPClient = hc
		}
	}
}

type companyDTO struct {
	ID   json.RawMessage `json:"id"`
	Name string          `json:"name"`
}

// SearchCompanies calls GET /api/companies/?search=query.
func (c *Client) SearchCompanies(ctx context.Context, query string) ([]domain.Company, error) {
	endpoint := c.endpoint("/api/companies/") + "?" + url.Values{"search": {query}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var dtos []companyDTO
	if err := c.do(req, &dtos); err != nil {
		return nil, fmt.Errorf("crmapi: search companies: %w", err)
	}

	out := make([]domain.Company, 0, len(dtos))
	for _, d := range dtos {
		ref, kind, err := parseID(d.ID)
		if err != nil {
			return nil, fmt.Errorf("crmapi: company %q: %w", d.Name, err)
		}
		c.rememberKind(ref, kind)
		out = append(out, domain.Company{ID: ref, Name: d.Name})
	}
	return out, nil
}

type dealDTO struct {
	Title     string          `json:"title"`
	Company   json.RawMessage `json:"company"`
	Amount    *float64        `json:"amount"`
	Stage     string          `json:"stage"`
	CloseDate string          `json:"close_date"`
	Contacts  []int           `json:"contacts"`
}

type createdDTO struct {
	ID    json.RawMessage `json:"id"`
	Title string          `json:"title"`
}

// CreateDeal calls POST /api/deals/.
func (c *Client) CreateDeal(ctx context.Context, r domain.DealRequest) (*domain.CreatedDeal, error) {
	contacts := r.Contacts
	if contacts == nil {
		contacts = []int{}
	}
	body, err := json.Marshal(dealDTO{
		Title:     r.Title,
		Company:   c.encodeID(r.Company),
		Amount:    finiteOrNil(r.Amount),
		Stage:     r.Stage,
		CloseDate: r.CloseDate,
		Contacts:  contacts,
	})
	if err != nil {
		return nil, fmt.Errorf("crmapi: encode deal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/deals/"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var created createdDTO
	if err := c.do(req, &created); err != nil {
		return nil, fmt.Errorf("crmapi: create deal: %w", err)
	}

	// The deal exists at this point, so a missing id is only logged.
	id, _, err := parseID(created.ID)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("created deal without usable id", "title", r.Title, "error", err)
	}
	title := created.Title
	if title == "" {
		title = r.Title
	}
	return &domain.CreatedDeal{ID: string(id), Title: title}, nil
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("non-2xx: %d: %s", e.Code, e.Body)
}

func parseID(raw json.RawMessage) (domain.CompanyRef, idKind, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return "", kindNumber, errors.New("missing id")
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", kindString, err
		}
		return domain.CompanyRef(s), kindString, nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return "", kindNumber, err
	}
	return domain.CompanyRef(n.String()), kindNumber, nil
}

// finiteOrNil sends amounts that are not finite numbers as null.
func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func (c *Client) rememberKind(ref domain.CompanyRef, kind idKind) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.kinds == nil {
		c.kinds = make(map[domain.CompanyRef]idKind)
	}
	if _, ok := c.kinds[ref]; !ok {
		if len(c.kindOrder) >= maxKnownIDs {
			delete(c.kinds, c.kindOrder[0])
			c.kindOrder = c.kindOrder[1:]
		}
		c.kindOrder = append(c.kindOrder, ref)
	}
	c.kinds[ref] = kind
}

func (c *Client) encodeID(ref domain.CompanyRef) json.RawMessage {
	c.mu.Lock()
	kind, ok := c.kinds[ref]
	c.mu.Unlock()

	if !ok {
		kind = kindString
		if _, err := strconv.ParseInt(string(ref), 10, 64); err == nil {
			kind = kindNumber
		}
	}
	if kind == kindNumber {
		return json.RawMessage(ref)
	}
	b, _ := json.Marshal(string(ref))
	return b
}
