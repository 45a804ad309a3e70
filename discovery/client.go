package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/user/paybeacon/beacon"
	"github.com/user/paybeacon/logger"
)

const (
	// MaxLookupBatch caps the token list sent in one lookup round-trip.
	// Callers must not expect lookups beyond the cap to be serviced.
	MaxLookupBatch = 20

	// DefaultRequestTimeout keeps discovery calls snappier than the
	// app's general HTTP timeout; a slow lookup must not stall scans.
	DefaultRequestTimeout = 5 * time.Second
)

// TokenSource supplies the bearer credential attached to every request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource is a fixed bearer token.
type StaticTokenSource string

// Token returns the fixed token.
func (s StaticTokenSource) Token(ctx context.Context) (string, error) {
	return string(s), nil
}

// RegisterOptions tunes a beacon registration.
type RegisterOptions struct {
	TTLSeconds int
	Metadata   map[string]string
}

// Recipient is the backend identity a token resolves to.
type Recipient struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Handle      string `json:"handle,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// LookupEntry is one per-token resolution result.
type LookupEntry struct {
	Token     string                  `json:"token"`
	Found     bool                    `json:"found"`
	Context   beacon.DiscoveryContext `json:"context,omitempty"`
	Recipient *Recipient              `json:"recipient,omitempty"`
	Metadata  map[string]string       `json:"metadata,omitempty"`
}

// LookupResult carries the per-token results plus rate-limit metadata the
// backend reported. Remaining is -1 when the backend sent none.
type LookupResult struct {
	Results            []LookupEntry
	RateLimitRemaining int
	RateLimitReset     time.Time
}

// Resolver is the backend correlation surface the controllers depend on.
type Resolver interface {
	Register(ctx context.Context, dctx beacon.DiscoveryContext, opts RegisterOptions) (*beacon.Registration, error)
	Lookup(ctx context.Context, tokens []uint32, minRSSI int) (*LookupResult, error)
	Deregister(ctx context.Context, token uint32) error
	ListActive(ctx context.Context, dctx beacon.DiscoveryContext) ([]beacon.NearbyUser, error)
}

// Client is the authenticated HTTP resolver. Each call is a single
// request/response exchange; it never retries internally, so every call is
// safe for the caller to retry at its own discretion.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

// NewClient builds a resolver against baseURL (no trailing slash needed).
func NewClient(baseURL string, tokens TokenSource) *Client {
	for len(baseURL) > 0 && baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: DefaultRequestTimeout},
		tokens:  tokens,
	}
}

// APIError is a non-2xx backend response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discovery backend: %d %s", e.StatusCode, e.Message)
}

type registerRequest struct {
	Context   beacon.DiscoveryContext `json:"context"`
	ExpiresIn int                     `json:"expiresIn,omitempty"`
	Metadata  map[string]string       `json:"metadata,omitempty"`
}

type registerResponse struct {
	Token      string    `json:"token"`
	Major      uint16    `json:"major"`
	Minor      uint16    `json:"minor"`
	ExpiresAt  time.Time `json:"expiresAt"`
	TTLSeconds int       `json:"ttlSeconds"`
}

// Register obtains a fresh beacon registration for the given context.
func (c *Client) Register(ctx context.Context, dctx beacon.DiscoveryContext, opts RegisterOptions) (*beacon.Registration, error) {
	body := registerRequest{
		Context:   dctx,
		ExpiresIn: opts.TTLSeconds,
		Metadata:  opts.Metadata,
	}

	var resp registerResponse
	if _, err := c.do(ctx, http.MethodPost, "/v1/beacons/register", body, &resp); err != nil {
		return nil, err
	}

	token, err := beacon.ParseTokenHex(resp.Token)
	if err != nil {
		return nil, fmt.Errorf("backend returned malformed token: %w", err)
	}

	return &beacon.Registration{
		Token:      token,
		Major:      resp.Major,
		Minor:      resp.Minor,
		Context:    dctx,
		IssuedAt:   time.Now(),
		TTLSeconds: resp.TTLSeconds,
		ExpiresAt:  resp.ExpiresAt,
	}, nil
}

type lookupRequest struct {
	Tokens     []string `json:"tokens"`
	RSSIFilter int      `json:"rssiFilter,omitempty"`
}

type lookupResponse struct {
	Results            []LookupEntry `json:"results"`
	RateLimitRemaining *int          `json:"rateLimitRemaining,omitempty"`
	RateLimitReset     *int64        `json:"rateLimitReset,omitempty"`
}

// Lookup resolves up to MaxLookupBatch tokens in one round-trip. A longer
// list is truncated before the call; it is never split into multiple calls
// here.
func (c *Client) Lookup(ctx context.Context, tokens []uint32, minRSSI int) (*LookupResult, error) {
	if len(tokens) > MaxLookupBatch {
		tokens = tokens[:MaxLookupBatch]
	}

	hexTokens := make([]string, len(tokens))
	for i, t := range tokens {
		hexTokens[i] = beacon.TokenHex(t)
	}

	var resp lookupResponse
	header, err := c.do(ctx, http.MethodPost, "/v1/beacons/lookup", lookupRequest{Tokens: hexTokens, RSSIFilter: minRSSI}, &resp)
	if err != nil {
		return nil, err
	}

	result := &LookupResult{
		Results:            resp.Results,
		RateLimitRemaining: -1,
	}

	// Headers win over body fields when both are present.
	if v := header.Get("X-RateLimit-Remaining"); v != "" {
		fmt.Sscanf(v, "%d", &result.RateLimitRemaining)
	} else if resp.RateLimitRemaining != nil {
		result.RateLimitRemaining = *resp.RateLimitRemaining
	}
	if v := header.Get("X-RateLimit-Reset"); v != "" {
		var unix int64
		if _, err := fmt.Sscanf(v, "%d", &unix); err == nil {
			result.RateLimitReset = time.Unix(unix, 0)
		}
	} else if resp.RateLimitReset != nil {
		result.RateLimitReset = time.Unix(*resp.RateLimitReset, 0)
	}

	return result, nil
}

// Deregister releases a token. Not-found is success; deregister is
// routinely called during teardown and must never escalate.
func (c *Client) Deregister(ctx context.Context, token uint32) error {
	_, err := c.do(ctx, http.MethodDelete, "/v1/beacons/"+beacon.TokenHex(token), nil, nil)
	if apiErr, ok := err.(*APIError); ok && apiErr.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

type activeResponse struct {
	Results []beacon.NearbyUser `json:"results"`
}

// ListActive is the server-side fallback enumeration used when client-side
// broadcast/scan is unavailable. A backend without the endpoint degrades to
// an empty list, not an error.
func (c *Client) ListActive(ctx context.Context, dctx beacon.DiscoveryContext) ([]beacon.NearbyUser, error) {
	path := "/v1/beacons/active"
	if dctx != "" {
		path += "?context=" + string(dctx)
	}

	var resp activeResponse
	_, err := c.do(ctx, http.MethodGet, path, nil, &resp)
	if apiErr, ok := err.(*APIError); ok && apiErr.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// do performs one authenticated JSON exchange.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) (http.Header, error) {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	bearer, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("credential source: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := readErrorMessage(resp.Body)
		logger.Debug("discovery", "%s %s -> %d %s", method, path, resp.StatusCode, msg)
		return resp.Header, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.Header, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.Header, nil
}

func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return string(raw)
}
