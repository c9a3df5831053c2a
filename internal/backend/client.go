/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"party-request-go/internal/apperrors"
	"party-request-go/internal/metrics"
	"party-request-go/internal/models"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"
)

// Authorizer supplies session tokens and reacts to 401 responses.
type Authorizer interface {
	// Token returns the live session token. An expired session fails here,
	// before any network I/O.
	Token(ctx context.Context) (string, error)
	HandleUnauthorized(ctx context.Context, endpoint Endpoint, err error)
	RecentlyAuthenticated(window time.Duration) bool
}

type Client struct {
	baseURL     string
	httpClient  http.Client
	auth        Authorizer
	limiter     *rate.Limiter
	tracer      trace.Tracer
	metrics     *metrics.SyncMetrics
	retryDelay  time.Duration
	retryWindow time.Duration
}

func NewClient(cfg models.BackendConfig, m *metrics.SyncMetrics) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend base url cannot be empty")
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("request timeout must be positive, got %v", cfg.RequestTimeout)
	}

	httpClient, err := createCustomHttpClient(cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	// retry.NewConstant rejects a zero interval.
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Millisecond
	}

	return &Client{
		baseURL:     cfg.BaseURL,
		httpClient:  httpClient,
		limiter:     rate.NewLimiter(limit, burst),
		tracer:      otel.Tracer("party-request-go/backend"),
		metrics:     m,
		retryDelay:  retryDelay,
		retryWindow: cfg.RetryWindow,
	}, nil
}

// UseAuthorizer installs the session gate. The auth manager needs the client
// to log in, so it is wired after construction.
func (c *Client) UseAuthorizer(a Authorizer) {
	c.auth = a
}

func createCustomHttpClient(timeout time.Duration) (http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: timeout,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

// call performs one logical backend operation: session gate, rate limit, a
// single retry for the post-login 401 race, and error mapping.
func (c *Client) call(ctx context.Context, ep Endpoint, role models.Role, body any, segments ...string) (*envelope, error) {
	path := ep.resolve(role, segments...)
	ctx, span := c.tracer.Start(ctx, "backend."+ep.Name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", ep.Method),
			attribute.String("http.path", path),
		),
	)
	defer span.End()

	started := time.Now()

	var token string
	if ep.Authenticated {
		if c.auth == nil {
			return nil, apperrors.New(apperrors.CodeAuthentication, "no session available").ReauthRequired()
		}
		t, err := c.auth.Token(ctx)
		if err != nil {
			zap.L().Warn("Request aborted before sending",
				zap.String("endpoint", ep.Name),
				zap.Error(err))
			c.metrics.ObserveRemote(ep.Name, metrics.OutcomeAborted, 0)
			span.SetStatus(codes.Error, "session unavailable")
			return nil, err
		}
		token = t
	}

	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("unable to encode %s request: %w", ep.Name, err)
		}
		payload = encoded
	}

	attempt := 0
	var env *envelope
	backoff := retry.WithMaxRetries(1, retry.NewConstant(c.retryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		result, err := c.roundTrip(ctx, ep, path, token, payload)
		if err == nil {
			env = result
			return nil
		}
		if attempt == 1 && c.shouldRetryUnauthorized(ep, err) {
			zap.L().Info("Retrying request after early 401",
				zap.String("endpoint", ep.Name),
				zap.Duration("delay", c.retryDelay))
			return retry.RetryableError(err)
		}
		return err
	})

	span.SetAttributes(attribute.Int("attempts", attempt))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.metrics.ObserveRemote(ep.Name, metrics.OutcomeError, time.Since(started))

		if isUnauthorized(err) && c.auth != nil {
			c.auth.HandleUnauthorized(ctx, ep, err)
		}
		return nil, err
	}

	c.metrics.ObserveRemote(ep.Name, metrics.OutcomeOK, time.Since(started))
	return env, nil
}

func (c *Client) shouldRetryUnauthorized(ep Endpoint, err error) bool {
	if ep.AuthClass || c.auth == nil || !isUnauthorized(err) {
		return false
	}
	return c.auth.RecentlyAuthenticated(c.retryWindow)
}

func isUnauthorized(err error) bool {
	te := apperrors.As(err)
	return te != nil && te.Status() == http.StatusUnauthorized
}

func (c *Client) roundTrip(ctx context.Context, ep Endpoint, path, token string, payload []byte) (*envelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeNetwork, err, "rate limiter wait aborted")
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, ep.Method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("unable to build %s request: %w", ep.Name, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	zap.L().Debug("Making backend request",
		zap.String("endpoint", ep.Name),
		zap.String("method", ep.Method),
		zap.String("path", path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeNetwork, err, fmt.Sprintf("%s request failed", ep.Name))
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			zap.L().Debug("Failed to close response body", zap.Error(err))
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeNetwork, err, fmt.Sprintf("%s response read failed", ep.Name))
	}

	env, decodeErr := decodeEnvelope(raw)

	if resp.StatusCode >= http.StatusBadRequest {
		message := http.StatusText(resp.StatusCode)
		if decodeErr == nil && env.Message != "" {
			message = env.Message
		}
		zap.L().Warn("Backend request rejected",
			zap.String("endpoint", ep.Name),
			zap.Int("status", resp.StatusCode),
			zap.String("message", message))
		return nil, apperrors.New(apperrors.FromStatus(resp.StatusCode), message).WithStatus(resp.StatusCode)
	}

	if decodeErr != nil {
		return nil, apperrors.Wrap(apperrors.CodeServer, decodeErr, fmt.Sprintf("%s returned malformed body", ep.Name)).WithStatus(resp.StatusCode)
	}
	if env.Failed {
		return nil, apperrors.New(apperrors.CodeValidation, env.messageOr("request rejected")).WithStatus(resp.StatusCode)
	}
	return env, nil
}

// IsTimeout reports whether err came from a deadline rather than a refusal.
func IsTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
