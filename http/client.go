// Package http provides an hcf.Store backed by the hosted frontier service
// REST API.
package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fwojciec/hcf"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the address of the hosted service.
const DefaultBaseURL = "https://storage.scrapinghub.com"

// DefaultRequestTimeout is the default timeout for one HTTP request.
const DefaultRequestTimeout = 2 * time.Minute

// Option configures a Store.
type Option func(*Store)

// WithTimeout sets the timeout for HTTP requests.
// Defaults to DefaultRequestTimeout if not specified.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// WithRateLimit limits the store to rps requests per second.
// Zero or less disables limiting.
func WithRateLimit(rps float64) Option {
	return func(s *Store) {
		if rps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithHTTPClient sets the client used for requests. Its timeout is left
// untouched.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) {
		s.client = c
	}
}

// do sends one request and returns the response body. The API key is sent
// as the basic auth user name.
func (s *Store) do(ctx context.Context, method, path string, query url.Values, body io.Reader) ([]byte, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	u := s.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, hcf.Errorf(hcf.EINVALID, "build request: %v", err)
	}
	if s.apiKey != "" {
		req.SetBasicAuth(s.apiKey, "")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-jsonlines")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, hcf.Errorf(hcf.ETRANSIENT, "read response of %s %s: %v", method, path, err)
	}
	if err := classifyStatus(resp.StatusCode, method, path, data); err != nil {
		return nil, err
	}
	return data, nil
}

// classifyStatus maps an HTTP status to an application error.
// Throttling and server errors are transient, other client errors fatal.
func classifyStatus(code int, method, path string, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	switch {
	case code == http.StatusTooManyRequests,
		code == http.StatusRequestTimeout,
		code >= 500:
		return hcf.Errorf(hcf.ETRANSIENT, "HTTP %d for %s %s: %s", code, method, path, msg)
	case code == http.StatusNotFound:
		return hcf.Errorf(hcf.ENOTFOUND, "HTTP %d for %s %s: %s", code, method, path, msg)
	}
	return hcf.Errorf(hcf.EFATAL, "HTTP %d for %s %s: %s", code, method, path, msg)
}

// classifyTransportError marks request timeouts as transient. Errors caused
// by the caller's context ending are returned unchanged so they are not
// retried.
func classifyTransportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return hcf.Errorf(hcf.ETRANSIENT, "request timed out: %v", err)
	}
	return err
}

// jsonLines encodes each value on its own line.
func jsonLines[T any](values []T) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, v := range values {
		if err := enc.Encode(v); err != nil {
			return nil, hcf.Errorf(hcf.EINVALID, "encode: %v", err)
		}
	}
	return &buf, nil
}

// decodeLines decodes every non-empty line of data into a T.
func decodeLines[T any](data []byte) ([]T, error) {
	var out []T
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			return nil, hcf.Errorf(hcf.EINVALID, "decode response line: %v", err)
		}
		out = append(out, v)
	}
	return out, sc.Err()
}
