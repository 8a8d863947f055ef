package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// StatusError is returned when the server answered outside the 2xx range.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// RetryPolicy is a bounded retry count with a fixed delay between attempts.
type RetryPolicy struct {
	Retries int
	Delay   time.Duration
}

// Result describes the final attempt of a JSON call. Data holds the decoded
// body when it parsed as JSON; Raw always carries the body text.
type Result struct {
	OK       bool
	Status   int
	Data     interface{}
	Raw      string
	Attempts int
	Err      error
}

type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

// PostJSON sends body as JSON, retrying failed attempts per policy. It never
// returns an error directly; the outcome is reported in Result.
func (c *Client) PostJSON(ctx context.Context, url string, body interface{}, policy RetryPolicy) *Result {
	payload, err := json.Marshal(body)
	if err != nil {
		return &Result{Err: fmt.Errorf("encode request body: %w", err)}
	}

	res := &Result{}
	for attempt := 0; attempt <= policy.Retries; attempt++ {
		if attempt > 0 {
			if err := waitWithContext(ctx, policy.Delay); err != nil {
				res.Err = err
				return res
			}
		}
		res.Attempts = attempt + 1

		status, raw, err := c.send(ctx, http.MethodPost, url, payload)
		res.Status = status
		res.Raw = raw
		res.Data = decodeLoose(raw)
		res.Err = err
		if err == nil {
			res.OK = true
			return res
		}
		if ctx.Err() != nil {
			return res
		}
	}
	return res
}

// GetJSON fetches url and decodes a JSON body into out.
func (c *Client) GetJSON(ctx context.Context, url string, out interface{}) error {
	_, raw, err := c.send(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// Probe reports whether url answers a GET with a 2xx status.
func (c *Client) Probe(ctx context.Context, url string) (bool, int, error) {
	status, _, err := c.send(ctx, http.MethodGet, url, nil)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			return false, se.StatusCode, nil
		}
		return false, 0, err
	}
	return true, status, nil
}

func (c *Client) send(ctx context.Context, method, url string, payload []byte) (int, string, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("read response: %w", err)
	}
	raw := string(data)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, raw, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(raw)}
	}
	return resp.StatusCode, raw, nil
}

func decodeLoose(raw string) interface{} {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
