// Package pipedrive provides a rate-limited client for the Pipedrive REST v1 API.
package pipedrive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/recruitin/kandidatentekort/internal/resilience"
)

// Client defines the Pipedrive operations used by CRM sync and the nurture runner.
type Client interface {
	SearchPersons(ctx context.Context, email string) ([]Person, error)
	CreatePerson(ctx context.Context, in PersonInput) (*Person, error)
	SearchOrganizations(ctx context.Context, name string) ([]Organization, error)
	CreateOrganization(ctx context.Context, name string) (*Organization, error)
	PersonDeals(ctx context.Context, personID int, status string) ([]Deal, error)
	GetDeal(ctx context.Context, id int) (*Deal, error)
	ListDeals(ctx context.Context, status string) ([]Deal, error)
	CreateDeal(ctx context.Context, in DealInput) (*Deal, error)
	UpdateDeal(ctx context.Context, id int, fields map[string]any) (*Deal, error)
	AddNote(ctx context.Context, dealID int, content string) (*Note, error)
}

// PersonInput is the payload for creating a person.
type PersonInput struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	OrgID *int   `json:"org_id,omitempty"`
}

// DealInput is the payload for creating a deal.
type DealInput struct {
	Title      string  `json:"title"`
	PersonID   *int    `json:"person_id,omitempty"`
	OrgID      *int    `json:"org_id,omitempty"`
	PipelineID int     `json:"pipeline_id,omitempty"`
	StageID    int     `json:"stage_id,omitempty"`
	Value      float64 `json:"value,omitempty"`
	Currency   string  `json:"currency,omitempty"`
	Status     string  `json:"status,omitempty"`
}

// Option configures the Pipedrive client.
type Option func(*httpClient)

// WithBaseURL sets the API base URL (tests, EU instances).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithRateLimit caps requests per second. Pipedrive allows bursts of
// roughly 80 requests per 2 seconds per token.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithMaxAttempts sets the total tries for calls failing with 429/5xx.
func WithMaxAttempts(n int) Option {
	return func(c *httpClient) {
		c.attempts = n
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	token    string
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	attempts int
}

// NewClient creates a new Pipedrive client authenticated by API token.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:    token,
		baseURL:  "https://api.pipedrive.com/v1",
		http:     &http.Client{Timeout: 30 * time.Second},
		attempts: 2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the common {success, data, error} response wrapper.
type envelope struct {
	Success        bool            `json:"success"`
	Data           json.RawMessage `json:"data"`
	Error          string          `json:"error"`
	AdditionalData struct {
		Pagination struct {
			MoreItems bool `json:"more_items_in_collection"`
			NextStart int  `json:"next_start"`
		} `json:"pagination"`
	} `json:"additional_data"`
}

// do performs one API call with rate limiting and retry on transient
// failures. The data member of the envelope is returned.
func (c *httpClient) do(ctx context.Context, op, method, path string, query url.Values, body any) (*envelope, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, eris.Wrapf(err, "pipedrive: %s: marshal", op)
		}
	}

	if query == nil {
		query = url.Values{}
	}
	query.Set("api_token", c.token)
	reqURL := c.baseURL + path + "?" + query.Encode()

	env, err := resilience.DoVal(ctx, resilience.CRMPolicy(c.attempts, op), func(ctx context.Context) (*envelope, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "rate limit wait")
			}
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
		if err != nil {
			return nil, eris.Wrap(err, "create request")
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "request failed")
		}
		defer resp.Body.Close() //nolint:errcheck

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "read response body")
		}

		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(
				eris.Errorf("status %d: %s", resp.StatusCode, truncate(raw)), resp.StatusCode)
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, eris.Wrapf(err, "decode response (status %d)", resp.StatusCode)
		}
		if resp.StatusCode >= 300 || !env.Success {
			return nil, eris.Errorf("status %d: %s", resp.StatusCode, firstNonEmpty(env.Error, truncate(raw)))
		}
		return &env, nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "pipedrive: %s", op)
	}
	return env, nil
}

func decode[T any](env *envelope, op string) (T, error) {
	var out T
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, eris.Wrapf(err, "pipedrive: %s: decode data", op)
	}
	return out, nil
}

func (c *httpClient) SearchPersons(ctx context.Context, email string) ([]Person, error) {
	q := url.Values{}
	q.Set("term", email)
	q.Set("fields", "email")
	q.Set("exact_match", "true")

	env, err := c.do(ctx, "search persons", http.MethodGet, "/persons/search", q, nil)
	if err != nil {
		return nil, err
	}
	res, err := decode[searchResult[Person]](env, "search persons")
	if err != nil {
		return nil, err
	}
	return res.items(), nil
}

func (c *httpClient) CreatePerson(ctx context.Context, in PersonInput) (*Person, error) {
	env, err := c.do(ctx, "create person", http.MethodPost, "/persons", nil, in)
	if err != nil {
		return nil, err
	}
	return decode[*Person](env, "create person")
}

func (c *httpClient) SearchOrganizations(ctx context.Context, name string) ([]Organization, error) {
	q := url.Values{}
	q.Set("term", name)
	q.Set("fields", "name")
	q.Set("exact_match", "true")

	env, err := c.do(ctx, "search organizations", http.MethodGet, "/organizations/search", q, nil)
	if err != nil {
		return nil, err
	}
	res, err := decode[searchResult[Organization]](env, "search organizations")
	if err != nil {
		return nil, err
	}
	return res.items(), nil
}

func (c *httpClient) CreateOrganization(ctx context.Context, name string) (*Organization, error) {
	env, err := c.do(ctx, "create organization", http.MethodPost, "/organizations", nil, map[string]string{"name": name})
	if err != nil {
		return nil, err
	}
	return decode[*Organization](env, "create organization")
}

func (c *httpClient) PersonDeals(ctx context.Context, personID int, status string) ([]Deal, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	env, err := c.do(ctx, "person deals", http.MethodGet, fmt.Sprintf("/persons/%d/deals", personID), q, nil)
	if err != nil {
		return nil, err
	}
	return decode[[]Deal](env, "person deals")
}

func (c *httpClient) GetDeal(ctx context.Context, id int) (*Deal, error) {
	env, err := c.do(ctx, "get deal", http.MethodGet, fmt.Sprintf("/deals/%d", id), nil, nil)
	if err != nil {
		return nil, err
	}
	return decode[*Deal](env, "get deal")
}

// ListDeals pages through all deals with the given status.
func (c *httpClient) ListDeals(ctx context.Context, status string) ([]Deal, error) {
	const pageSize = 100

	var all []Deal
	start := 0
	for {
		q := url.Values{}
		if status != "" {
			q.Set("status", status)
		}
		q.Set("start", strconv.Itoa(start))
		q.Set("limit", strconv.Itoa(pageSize))

		env, err := c.do(ctx, "list deals", http.MethodGet, "/deals", q, nil)
		if err != nil {
			return all, err
		}
		page, err := decode[[]Deal](env, "list deals")
		if err != nil {
			return all, err
		}
		all = append(all, page...)

		p := env.AdditionalData.Pagination
		if !p.MoreItems || p.NextStart <= start {
			return all, nil
		}
		start = p.NextStart
	}
}

func (c *httpClient) CreateDeal(ctx context.Context, in DealInput) (*Deal, error) {
	env, err := c.do(ctx, "create deal", http.MethodPost, "/deals", nil, in)
	if err != nil {
		return nil, err
	}
	return decode[*Deal](env, "create deal")
}

func (c *httpClient) UpdateDeal(ctx context.Context, id int, fields map[string]any) (*Deal, error) {
	env, err := c.do(ctx, "update deal", http.MethodPut, fmt.Sprintf("/deals/%d", id), nil, fields)
	if err != nil {
		return nil, err
	}
	return decode[*Deal](env, "update deal")
}

func (c *httpClient) AddNote(ctx context.Context, dealID int, content string) (*Note, error) {
	body := map[string]any{"deal_id": dealID, "content": content}
	env, err := c.do(ctx, "add note", http.MethodPost, "/notes", nil, body)
	if err != nil {
		return nil, err
	}
	return decode[*Note](env, "add note")
}

func truncate(b []byte) string {
	const limit = 300
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
