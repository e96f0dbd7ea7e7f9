// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/criticus/internal/logging"
	"github.com/tomtom215/criticus/internal/metrics"
	"github.com/tomtom215/criticus/internal/ratelimit"
)

// maxErrorBodySize limits how much of an error response body is read
// for diagnostics.
const maxErrorBodySize = 64 * 1024 // 64KB

// session is the shared HTTP layer under every network-backed adapter.
// It serializes admission through the provider's sliding-window limiter,
// guards the upstream with a circuit breaker, and translates transport
// and status failures into the FetchError taxonomy.
type session struct {
	provider string
	baseURL  string
	headers  map[string]string
	client   *http.Client
	limits   *ratelimit.Registry
	breaker  *gobreaker.CircuitBreaker[[]byte]
}

// newSession builds a session for one provider endpoint. Admission runs
// through the shared registry under the session's provider name.
func newSession(provider, baseURL string, timeout time.Duration, limits *ratelimit.Registry, headers map[string]string) *session {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        provider,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Provider circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			// Quota exhaustion and no-data responses are upstream
			// policy, not upstream failure; they must not trip the
			// breaker.
			return err == nil || Classify(err) != KindRetryable
		},
	})

	return &session{
		provider: provider,
		baseURL:  baseURL,
		headers:  headers,
		client:   &http.Client{Timeout: timeout},
		limits:   limits,
		breaker:  cb,
	}
}

// getJSON performs a rate-limited GET against path and decodes the JSON
// response into out. All failures are *FetchError.
func (s *session) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	if err := s.limits.Admit(ctx, s.provider); err != nil {
		return Retryable(s.provider, "cancelled while awaiting admission", err)
	}

	start := time.Now()
	body, err := s.breaker.Execute(func() ([]byte, error) {
		return s.doGet(ctx, path, query)
	})
	metrics.ProviderFetchDuration.WithLabelValues(s.provider).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Retryable(s.provider, "circuit breaker open", err)
		}
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return Retryable(s.provider, "malformed response", err)
	}
	return nil
}

// doGet executes one HTTP GET and classifies the response.
func (s *session) doGet(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := s.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, Retryable(s.provider, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, Retryable(s.provider, "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, Retryable(s.provider, "read response", err)
		}
		return body, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, RateLimited(s.provider)

	case resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return nil, Permanent(s.provider, fmt.Sprintf("HTTP %d", resp.StatusCode))

	default:
		snippet := readBodyForError(resp.Body)
		return nil, Retryable(s.provider,
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, snippet), nil)
	}
}

// readBodyForError reads at most maxErrorBodySize bytes for diagnostics.
func readBodyForError(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return "(failed to read response body)"
	}
	return string(body)
}
