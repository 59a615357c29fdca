package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	apperrors "github.com/devpulse-io/devpulse/internal/errors"
	"golang.org/x/time/rate"
)

// minPlausibleBody is the shortest body a real API response can have.
// Anything shorter is a proxy or edge node answering in the API's place.
const minPlausibleBody = 10

// secondaryLimitRe matches the soft rate-limit rejections GitHub and
// similar APIs put in a 403 body. There is no structured field for
// these, so the match is deliberately loose.
var secondaryLimitRe = regexp.MustCompile(`(?i)secondary rate limit|rate limit exceeded|abuse detection`)

// Request describes one outbound API call
type Request struct {
	Method string     // defaults to GET
	URL    string
	Query  url.Values // appended to URL when non-empty
	Body   any        // marshaled to JSON when non-nil
	Header http.Header
}

// Executor issues exactly one network call per invocation and
// classifies the outcome. It never sleeps and never retries; that is
// the retry controller's job.
type Executor interface {
	Execute(ctx context.Context, req *Request) ([]byte, error)
}

// HTTPExecutor is the production Executor. The optional limiter is a
// proactive politeness throttle applied before each call.
type HTTPExecutor struct {
	client  *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewHTTPExecutor creates an executor on top of the given client.
// requestsPerSec <= 0 disables the client-side throttle.
func NewHTTPExecutor(client *http.Client, requestsPerSec float64, log *slog.Logger) *HTTPExecutor {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPExecutor{
		client:  client,
		limiter: NewLimiter(requestsPerSec),
		log:     log,
	}
}

// Execute performs the call and applies the outcome classification
// rules in order. The returned payload is the raw response body.
func (e *HTTPExecutor) Execute(ctx context.Context, req *Request) ([]byte, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	httpReq, err := buildHTTPRequest(ctx, req)
	if err != nil {
		return nil, apperrors.NewQueryFailedError("building request", err)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, apperrors.NewRetryableError(fmt.Sprintf("transport failure calling %s", req.URL), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewRetryableError("reading response body", err)
	}

	e.log.Debug("api call",
		"method", httpReq.Method,
		"url", req.URL,
		"status", resp.StatusCode,
		"bytes", len(body),
	)

	return Classify(resp.StatusCode, resp.Header.Get("Content-Type"), body)
}

// Classify maps a response to a payload or a typed error. Rules apply
// in order; the first match wins.
func Classify(status int, contentType string, body []byte) ([]byte, error) {
	switch {
	case status == http.StatusUnauthorized:
		return nil, apperrors.NewAuthFailedError("credentials rejected (401)")
	case status == http.StatusForbidden && secondaryLimitRe.Match(body):
		return nil, apperrors.NewRateLimitedError("secondary rate limit hit (403)")
	case status == http.StatusBadGateway,
		status == http.StatusServiceUnavailable,
		status == http.StatusGatewayTimeout:
		return nil, apperrors.NewRetryableError(fmt.Sprintf("upstream unavailable (%d)", status), nil)
	case status >= 500:
		return nil, apperrors.NewRetryableError(fmt.Sprintf("server error (%d)", status), nil)
	case status >= 400:
		return nil, apperrors.NewQueryFailedError(fmt.Sprintf("request rejected (%d): %s", status, truncate(body, 200)), nil)
	}

	if !strings.Contains(strings.ToLower(contentType), "json") || len(body) < minPlausibleBody {
		return nil, apperrors.NewRetryableError("non-API response from proxy or edge", nil)
	}
	if !json.Valid(body) {
		return nil, apperrors.NewRetryableError("malformed JSON body", nil)
	}

	// A 200 with a GraphQL errors array is a query-level failure, not a
	// transport problem. Retrying an invalid query wastes budget.
	var envelope struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Errors) > 0 {
		messages := make([]string, 0, len(envelope.Errors))
		for _, ge := range envelope.Errors {
			messages = append(messages, ge.Message)
		}
		return nil, apperrors.NewQueryFailedError("query error: "+strings.Join(messages, "; "), nil)
	}

	return body, nil
}

func buildHTTPRequest(ctx context.Context, req *Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	u := req.URL
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var payload io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u, payload)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	return httpReq, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
