// Package calls talks to the remote endpoint that starts outbound calls.
package calls

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/harrylevesque/callform/internal/models"
)

// Outcome is the three-way result of one submission.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeServerRejected
	OutcomeNetworkFailure
)

const (
	MessageSent       = "Number sent!"
	MessageRejected   = "Error while sending!"
	MessageConnection = "Connection error!"
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeServerRejected:
		return "server_rejected"
	case OutcomeNetworkFailure:
		return "network_failure"
	default:
		return "unknown"
	}
}

// Message is the user-facing text for the outcome.
func (o Outcome) Message() string {
	switch o {
	case OutcomeSuccess:
		return MessageSent
	case OutcomeServerRejected:
		return MessageRejected
	default:
		return MessageConnection
	}
}

// Classify maps an error returned by Send back to its Outcome.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	var se *StatusError
	if errors.As(err, &se) {
		return OutcomeServerRejected
	}
	return OutcomeNetworkFailure
}

type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds each request. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

type Client struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient returns a client posting to endpoint, which must be an absolute http(s) URL.
func NewClient(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("endpoint must be an absolute http(s) URL, got %q", endpoint)
	}
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

// Send posts {"phone": phone} once. The response body is never inspected.
func (c *Client) Send(ctx context.Context, phone string) (Outcome, error) {
	data, err := json.Marshal(models.CallRequest{Phone: phone})
	if err != nil {
		return OutcomeNetworkFailure, err
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return OutcomeNetworkFailure, &NetworkError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return OutcomeNetworkFailure, &NetworkError{Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return OutcomeServerRejected, &StatusError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return OutcomeSuccess, nil
}
