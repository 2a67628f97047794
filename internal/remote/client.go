// Package remote is the HTTP client for the wishlist API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/nlenjibi/storefront-wishlist/pkg/config"
	pkgerrors "github.com/nlenjibi/storefront-wishlist/pkg/errors"
	"github.com/nlenjibi/storefront-wishlist/pkg/logger"
	"github.com/nlenjibi/storefront-wishlist/pkg/ratelimit"
	"github.com/nlenjibi/storefront-wishlist/pkg/types"
)

// Endpoint groups share a token bucket.
const (
	groupRead    = "read"
	groupWrite   = "write"
	groupCatalog = "catalog"
	groupPublic  = "public"
)

const (
	defaultTimeout   = 15 * time.Second
	maxResponseBytes = 4 << 20
)

// Options configures an HTTPClient.
type Options struct {
	BaseURL       string
	HTTPClient    *http.Client
	Limiter       *ratelimit.KeyedRateLimiter
	RetryAttempts uint
	RetryDelay    time.Duration
	AccessToken   string
	Logger        *logger.Logger
}

// HTTPClient talks JSON to the wishlist API. Reads are retried on transient
// failures; writes are sent once.
type HTTPClient struct {
	base     *url.URL
	http     *http.Client
	limiter  *ratelimit.KeyedRateLimiter
	attempts uint
	delay    time.Duration
	logg     *logger.Logger

	mu    sync.RWMutex
	token string
}

// NewHTTPClient validates opts and builds a client.
func NewHTTPClient(opts Options) (*HTTPClient, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		return nil, errors.New("remote base url is required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse remote base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("remote base url must be http or https, got %q", base.Scheme)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.New(0, 1)
	}
	attempts := opts.RetryAttempts
	if attempts == 0 {
		attempts = 1
	}
	return &HTTPClient{
		base:     base,
		http:     httpClient,
		limiter:  limiter,
		attempts: attempts,
		delay:    opts.RetryDelay,
		logg:     opts.Logger,
		token:    opts.AccessToken,
	}, nil
}

// NewFromConfig builds a client from the sync configuration.
func NewFromConfig(cfg config.SyncConfig, logg *logger.Logger) (*HTTPClient, error) {
	return NewHTTPClient(Options{
		BaseURL:       cfg.RemoteBaseURL,
		Limiter:       ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst),
		RetryAttempts: cfg.RetryAttempts,
		RetryDelay:    cfg.RetryDelay,
		AccessToken:   cfg.AccessToken,
		Logger:        logg,
	})
}

// SetAccessToken swaps the bearer token used on authenticated calls. An
// empty token sends requests anonymously.
func (c *HTTPClient) SetAccessToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *HTTPClient) accessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type call struct {
	group      string
	method     string
	path       string
	query      url.Values
	body       any
	idempotent bool
	anonymous  bool
}

// do performs the call and decodes the success envelope's data into out.
func (c *HTTPClient) do(ctx context.Context, req call, out any) error {
	var payload []byte
	if req.body != nil {
		encoded, err := json.Marshal(req.body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode request body")
		}
		payload = encoded
	}

	attempt := func() error {
		if err := c.limiter.Wait(ctx, req.group); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiter wait")
		}
		return c.send(ctx, req, payload, out)
	}

	if !req.idempotent || c.attempts <= 1 {
		return attempt()
	}
	return retry.Do(
		attempt,
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(pkgerrors.IsRetryable),
		retry.OnRetry(func(n uint, err error) {
			if c.logg == nil {
				return
			}
			logCtx := c.logg.WithFields(ctx, map[string]any{
				"attempt": n + 1,
				"method":  req.method,
				"path":    req.path,
				"error":   err.Error(),
			})
			c.logg.Warn(logCtx, "retrying wishlist api call")
		}),
	)
}

func (c *HTTPClient) send(ctx context.Context, req call, payload []byte, out any) error {
	target := *c.base
	target.Path = c.base.Path + req.path
	if len(req.query) > 0 {
		target.RawQuery = req.query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target.String(), body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if !req.anonymous {
		if token := c.accessToken(); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s %s", req.method, req.path))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read response body")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent || len(raw) == 0 {
		return nil
	}
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode response envelope")
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode response data")
	}
	return nil
}

// decodeError maps an HTTP failure onto the error taxonomy. Server faults,
// throttling and unparseable bodies are transient dependency failures.
func decodeError(status int, raw []byte) error {
	var envelope types.ErrorEnvelope
	_ = json.Unmarshal(raw, &envelope)
	message := strings.TrimSpace(envelope.Error.Message)
	if message == "" {
		message = fmt.Sprintf("wishlist api returned %d", status)
	}

	if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout {
		return pkgerrors.New(pkgerrors.CodeDependency, message).WithDetails(map[string]any{"status": status})
	}

	code := pkgerrors.Code(envelope.Error.Code)
	switch code {
	case pkgerrors.CodeValidation, pkgerrors.CodeUnauthorized, pkgerrors.CodeForbidden,
		pkgerrors.CodeNotFound, pkgerrors.CodeConflict, pkgerrors.CodeStateConflict:
	default:
		code = codeForStatus(status)
	}
	typed := pkgerrors.New(code, message)
	if envelope.Error.Details != nil {
		typed = typed.WithDetails(envelope.Error.Details)
	}
	return typed
}

func codeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusUnprocessableEntity:
		return pkgerrors.CodeStateConflict
	default:
		return pkgerrors.CodeValidation
	}
}

func productPath(productID int64) string {
	return "/api/v1/wishlist/" + strconv.FormatInt(productID, 10)
}
