// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package api talks to the backend that serves form definitions and stores
// submissions
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/choria-io/formstate/answers"
	"github.com/choria-io/formstate/forms"
)

// ErrRequestFailed is returned for requests the backend did not accept
var ErrRequestFailed = errors.New("api request failed")

// TokenSource supplies the bearer token attached to requests
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Logger is the logging interface used by the client
type Logger interface {
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
}

// Submission is a stored set of answers for a form
type Submission struct {
	ID        string            `json:"_id,omitempty"`
	FormID    string            `json:"formId"`
	Sections  []answers.Section `json:"sections"`
	CreatedAt string            `json:"createdAt,omitempty"`
	UpdatedAt string            `json:"updatedAt,omitempty"`
}

// Client is a backend API client
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	log     Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient uses hc for requests, the default client has a 30 second timeout
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTokenSource attaches bearer tokens from ts to every request
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithLogger logs requests to log
func WithLogger(log Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient creates a client for the API at baseURL
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("api url is required")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid api url %q: unsupported scheme", baseURL)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}

	for _, o := range opts {
		o(c)
	}

	return c, nil
}

// BaseURL is the API root without a trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchForm retrieves and validates the definition of form id
func (c *Client) FetchForm(ctx context.Context, id string) (*forms.Form, error) {
	var raw json.RawMessage

	err := c.Do(ctx, http.MethodGet, "v1/forms/"+url.PathEscape(id), nil, nil, &raw)
	if err != nil {
		return nil, err
	}

	form, err := forms.LoadBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid form %s: %w", id, err)
	}

	return form, nil
}

// FetchSubmission retrieves a stored submission, its sections hydrate a session
func (c *Client) FetchSubmission(ctx context.Context, formID string, id string) (*Submission, error) {
	var sub Submission

	err := c.Do(ctx, http.MethodGet, submissionsPath(formID)+"/"+url.PathEscape(id), nil, nil, &sub)
	if err != nil {
		return nil, err
	}

	return &sub, nil
}

// Submit stores sections as a new submission of formID
func (c *Client) Submit(ctx context.Context, formID string, sections []answers.Section) (*Submission, error) {
	var sub Submission

	err := c.Do(ctx, http.MethodPost, submissionsPath(formID), nil, Submission{FormID: formID, Sections: sections}, &sub)
	if err != nil {
		return nil, err
	}

	if c.log != nil {
		c.log.Infof("Stored submission %s for form %s", sub.ID, formID)
	}

	return &sub, nil
}

// UpdateSubmission replaces the sections of a stored submission
func (c *Client) UpdateSubmission(ctx context.Context, formID string, id string, sections []answers.Section) (*Submission, error) {
	var sub Submission

	err := c.Do(ctx, http.MethodPut, submissionsPath(formID)+"/"+url.PathEscape(id), nil, Submission{ID: id, FormID: formID, Sections: sections}, &sub)
	if err != nil {
		return nil, err
	}

	return &sub, nil
}

func submissionsPath(formID string) string {
	return "v1/forms/" + url.PathEscape(formID) + "/submissions"
}

// Do performs a JSON request against path relative to the API root, body is
// encoded as JSON when not nil and the response is decoded into out when not nil
func (c *Client) Do(ctx context.Context, method string, path string, query url.Values, body any, out any) error {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rb io.Reader
	if body != nil {
		j, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rb = bytes.NewReader(j)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rb)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	if c.log != nil {
		c.log.Debugf("%s %s", method, u)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	res, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(res))}
	}

	if out == nil || len(bytes.TrimSpace(res)) == 0 {
		return nil
	}

	err = json.Unmarshal(res, out)
	if err != nil {
		return fmt.Errorf("%w: invalid response to %s %s: %v", ErrRequestFailed, method, path, err)
	}

	return nil
}

// StatusError is a response with a non 2xx status code
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, http.StatusText(e.Code))
	}

	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.Code, http.StatusText(e.Code), e.Body)
}

// Unwrap makes StatusError match ErrRequestFailed
func (e *StatusError) Unwrap() error {
	return ErrRequestFailed
}
