// Package cplane provides an HTTP client for the pageserver endpoints of the
// console and control-plane management APIs.
package cplane

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/narvanalabs/pageserver-registrar/internal/models"
	"github.com/narvanalabs/pageserver-registrar/internal/version"
)

// RequestIDHeader carries a per-call correlation id.
const RequestIDHeader = "X-Request-ID"

// Outcome classifies a lookup. Callers treat NotFound and Unreachable alike,
// the distinction only feeds logs and metrics.
type Outcome string

const (
	OutcomeFound       Outcome = "found"
	OutcomeNotFound    Outcome = "not_found"
	OutcomeUnreachable Outcome = "unreachable"
)

// ErrStatus is wrapped by Register when the service answers with a non-2xx status.
var ErrStatus = errors.New("unexpected response status")

// Document is a decoded JSON object returned by a service.
type Document map[string]json.RawMessage

// NodeID returns the "node_id" field if present and non-null.
func (d Document) NodeID() (models.NodeID, bool) {
	raw, ok := d["node_id"]
	if !ok {
		return models.NodeID{}, false
	}
	var id models.NodeID
	if err := json.Unmarshal(raw, &id); err != nil || id.IsZero() {
		return models.NodeID{}, false
	}
	return id, true
}

// Decode unmarshals field key into v. It reports false when the key is absent.
func (d Document) Decode(key string, v any) (bool, error) {
	raw, ok := d[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("decoding %q: %w", key, err)
	}
	return true, nil
}

// Target names one service endpoint and the credential used against it.
type Target struct {
	// Service labels logs and metrics, e.g. "console" or "global".
	Service string
	URL     string
	Token   string
}

// Observer receives one callback per HTTP call.
type Observer interface {
	ObserveRequest(service, method string, d time.Duration)
}

// Client is a bearer-token JSON client for pageserver endpoints.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	observer   Observer
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithObserver sets the request observer.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// NewClient creates a client. A zero timeout leaves requests unbounded.
func NewClient(timeout time.Duration, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		userAgent:  version.UserAgent(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch GETs the target URL, or URL/suffix when suffix is non-empty. Any
// transport error, non-200 status or JSON body that is not an object yields
// an empty document; only a malformed 200 body is returned as an error.
func (c *Client) Fetch(ctx context.Context, t Target, suffix string) (Document, Outcome, error) {
	url := t.URL
	if suffix != "" {
		url = url + "/" + suffix
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}
	requestID := c.setHeaders(req, t.Token)
	log := c.logger.With("service", t.Service, "request_id", requestID, "method", http.MethodGet, "url", url)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.observe(t.Service, http.MethodGet, start)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", ctxErr
		}
		log.Warn("lookup request failed, treating as absent", "error", err)
		return Document{}, OutcomeUnreachable, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Info("lookup returned no data",
			"status", resp.StatusCode,
			"body", strings.TrimSpace(string(body)),
		)
		return Document{}, OutcomeNotFound, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading response from %s: %w", url, err)
	}
	var raw json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, "", fmt.Errorf("decoding response from %s: %w", url, err)
	}
	if !isObject(raw) {
		log.Info("lookup returned a non-object body, treating as absent", "status", resp.StatusCode)
		return Document{}, OutcomeNotFound, nil
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, "", fmt.Errorf("decoding response from %s: %w", url, err)
	}
	log.Debug("lookup succeeded", "status", resp.StatusCode)
	return doc, OutcomeFound, nil
}

// LookupNodeID GETs URL/host and returns its node_id, if any.
func (c *Client) LookupNodeID(ctx context.Context, t Target, host string) (models.NodeID, Outcome, error) {
	doc, outcome, err := c.Fetch(ctx, t, host)
	if err != nil {
		return models.NodeID{}, outcome, err
	}
	id, ok := doc.NodeID()
	if !ok {
		if outcome == OutcomeFound {
			outcome = OutcomeNotFound
		}
		return models.NodeID{}, outcome, nil
	}
	return id, OutcomeFound, nil
}

// Register POSTs payload to the target URL and returns the node_id from the
// response. Transport errors, non-2xx statuses and malformed bodies are returned.
func (c *Client) Register(ctx context.Context, t Target, payload models.RegistrationPayload) (models.NodeID, bool, error) {
	url := t.URL
	body, err := json.Marshal(payload)
	if err != nil {
		return models.NodeID{}, false, fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return models.NodeID{}, false, fmt.Errorf("creating request: %w", err)
	}
	requestID := c.setHeaders(req, t.Token)
	req.Header.Set("User-Agent", c.userAgent)
	log := c.logger.With("service", t.Service, "request_id", requestID, "method", http.MethodPost, "url", url)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.observe(t.Service, http.MethodPost, start)
	if err != nil {
		return models.NodeID{}, false, fmt.Errorf("posting to %s: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.NodeID{}, false, fmt.Errorf("reading response from %s: %w", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.NodeID{}, false, fmt.Errorf("%w: %s returned %d: %s",
			ErrStatus, url, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var doc Document
	if err := json.Unmarshal(respBody, &doc); err != nil {
		return models.NodeID{}, false, fmt.Errorf("decoding response from %s: %w", url, err)
	}
	log.Info("registration response", "status", resp.StatusCode, "response", json.RawMessage(respBody))

	id, ok := doc.NodeID()
	return id, ok, nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func (c *Client) setHeaders(req *http.Request, token string) string {
	requestID := uuid.New().String()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	return requestID
}

func (c *Client) observe(service, method string, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveRequest(service, method, time.Since(start))
	}
}
