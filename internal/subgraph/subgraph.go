package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"defiwatch-telegram-bot/internal/cache"
	"defiwatch-telegram-bot/internal/ratelimit"
	"defiwatch-telegram-bot/internal/types"

	log "github.com/sirupsen/logrus"
)

// MaxQueryLen bounds accepted query documents.
const MaxQueryLen = 5000

const limitAction = "subgraph_query"

// ClientConfig configuration of the subgraph client
type ClientConfig struct {
	BaseURL      string
	CacheTTL     time.Duration
	FetchTimeout time.Duration
	RateLimit    int
	RateWindow   time.Duration
}

// Client fronts the indexed-query upstream with a per-client rate limiter
// and a TTL response cache so monitoring and user traffic do not overwhelm
// the upstream or each other.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	cache      *cache.Cache
	limiter    *ratelimit.Limiter
	now        func() time.Time
}

// QueryRequest is one upstream query: scope selects the subgraph, variables
// (if present) must be a JSON object.
type QueryRequest struct {
	Scope     string          `json:"scope"`
	Query     string          `json:"query"`
	Variables json.RawMessage `json:"variables,omitempty"`
}

// QueryResult carries the upstream payload plus cache metadata.
type QueryResult struct {
	Data      json.RawMessage `json:"data"`
	FromCache bool            `json:"fromCache"`
	CacheKey  string          `json:"cacheKey"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewClient(c ClientConfig, responseCache *cache.Cache, limiter *ratelimit.Limiter) *Client {
	return &Client{
		config:     c,
		httpClient: &http.Client{Timeout: c.FetchTimeout},
		cache:      responseCache,
		limiter:    limiter,
		now:        time.Now,
	}
}

// Query validates, rate-limits, and serves req from cache when possible,
// falling through to a real upstream fetch on a miss.
//
// There is no single-flight coalescing: concurrent misses for the same key
// each fetch upstream and the last write wins. Accepted tradeoff — the TTL
// keeps the duplicate-fetch window small.
func (c *Client) Query(ctx context.Context, clientID string, req QueryRequest) (*QueryResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	req.Variables = normalizeVariables(req.Variables)

	if err := c.limiter.Enforce(clientID, limitAction, c.config.RateLimit, c.config.RateWindow); err != nil {
		return nil, err
	}

	key := cache.Key(req.Scope, req.Query, req.Variables)
	if data, found := c.cache.Get(key); found {
		log.Debugf("subgraph cache hit for %s", key)
		return &QueryResult{Data: data, FromCache: true, CacheKey: key, Timestamp: c.now()}, nil
	}

	data, err := c.fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	c.cache.Set(key, data, c.config.CacheTTL)
	return &QueryResult{Data: data, FromCache: false, CacheKey: key, Timestamp: c.now()}, nil
}

func validateRequest(req QueryRequest) error {
	if req.Scope == "" {
		return types.NewValidationError("scope is required")
	}
	if req.Query == "" {
		return types.NewValidationError("query is required")
	}
	if len(req.Query) > MaxQueryLen {
		return types.NewValidationError(fmt.Sprintf("query exceeds %d characters", MaxQueryLen))
	}
	if len(req.Variables) > 0 && !bytes.Equal(req.Variables, jsonNull) {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(req.Variables, &obj); err != nil {
			return types.NewValidationError("variables must be a JSON object")
		}
	}
	return nil
}

// fetch performs the real upstream POST under a bounded timeout. Failed or
// errored responses are never cached.
func (c *Client) fetch(ctx context.Context, req QueryRequest) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]json.RawMessage{
		"query":     mustJSONString(req.Query),
		"variables": req.Variables,
	})
	if err != nil {
		return nil, &types.UpstreamError{Msg: "could not encode query", Err: err}
	}

	url := fmt.Sprintf("%s/subgraphs/name/%s", c.config.BaseURL, req.Scope)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &types.UpstreamError{Msg: "could not build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		timedOut := ctx.Err() == context.DeadlineExceeded
		return nil, &types.UpstreamError{Msg: "fetch failed", Timeout: timedOut, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &types.UpstreamError{Msg: fmt.Sprintf("upstream returned HTTP %d", resp.StatusCode)}
	}

	var payload struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &types.UpstreamError{Msg: "could not decode response", Err: err}
	}
	if len(payload.Errors) > 0 {
		return nil, &types.UpstreamError{Msg: "query error: " + payload.Errors[0].Message}
	}

	return payload.Data, nil
}

func mustJSONString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

var jsonNull = []byte("null")

// normalizeVariables maps absent and JSON null variables onto the empty
// object so both derive the same cache key and upstream payload.
func normalizeVariables(vars json.RawMessage) json.RawMessage {
	if len(vars) == 0 || bytes.Equal(vars, jsonNull) {
		return json.RawMessage("{}")
	}
	return vars
}
