// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package upload sends form images to the backend and returns the reference
// URL that gets stored as the answer
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// Kind selects the backend endpoint an image is uploaded to
type Kind string

const (
	// PersonKind uploads identity photos for the registration section
	PersonKind Kind = "person"
	// SafetyKind uploads evidence photos for all other sections
	SafetyKind Kind = "safety"
)

const (
	personPath = "v1/work-permit/organizations/upload-image"
	safetyPath = "v1/safety/upload"
)

// ErrUploadFailed is returned when the backend rejects an upload
var ErrUploadFailed = errors.New("image upload failed")

// File is a single selected image
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size is the length of the file content in bytes
func (f File) Size() int64 {
	return int64(len(f.Data))
}

// TokenSource supplies the bearer token attached to uploads
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Logger is the logging interface used by the client
type Logger interface {
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
}

// Client uploads images to the backend API
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	log     Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient uses hc for requests, the default client has a 60 second timeout
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTokenSource attaches bearer tokens from ts to every request
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithLogger logs uploads to log
func WithLogger(log Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient creates a client for the API at baseURL
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("api url is required")
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: time.Minute},
	}

	for _, o := range opts {
		o(c)
	}

	return c, nil
}

// Upload posts f to the endpoint for kind and returns the absolute reference URL
func (c *Client) Upload(ctx context.Context, kind Kind, f File) (string, error) {
	body, contentType, err := multipartBody(kind, f)
	if err != nil {
		return "", err
	}

	path := safetyPath
	if kind == PersonKind {
		path = personPath
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+path, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return "", err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	if c.log != nil {
		c.log.Debugf("Uploading %s (%d bytes) to %s", f.Name, f.Size(), path)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %s: %s", ErrUploadFailed, resp.Status, strings.TrimSpace(string(rb)))
	}

	ref, err := referencePath(kind, rb)
	if err != nil {
		return "", err
	}

	url := c.baseURL + "/" + strings.TrimLeft(ref, "/")

	if c.log != nil {
		c.log.Infof("Uploaded %s as %s", f.Name, url)
	}

	return url, nil
}

// referencePath extracts the stored path from an upload response, the person
// endpoint returns the bare path while the safety endpoint wraps it in data
func referencePath(kind Kind, body []byte) (string, error) {
	body = bytes.TrimSpace(body)

	if kind == PersonKind {
		var s string
		if json.Unmarshal(body, &s) == nil && s != "" {
			return s, nil
		}

		if len(body) == 0 || body[0] == '{' || body[0] == '[' {
			return "", fmt.Errorf("%w: unexpected response %q", ErrUploadFailed, body)
		}

		return string(body), nil
	}

	var res struct {
		Data string `json:"data"`
	}

	err := json.Unmarshal(body, &res)
	if err != nil {
		return "", fmt.Errorf("%w: invalid response: %v", ErrUploadFailed, err)
	}

	if res.Data == "" {
		return "", fmt.Errorf("%w: response has no data", ErrUploadFailed)
	}

	return res.Data, nil
}

func multipartBody(kind Kind, f File) (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	ct := f.ContentType
	if ct == "" {
		ct = http.DetectContentType(f.Data)
	}

	name := f.Name
	if name == "" {
		name = "image"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, name))
	h.Set("Content-Type", ct)

	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}

	_, err = part.Write(f.Data)
	if err != nil {
		return nil, "", err
	}

	if kind == PersonKind {
		err = mw.WriteField("upload", string(PersonKind))
		if err != nil {
			return nil, "", err
		}
	}

	err = mw.Close()
	if err != nil {
		return nil, "", err
	}

	return buf, mw.FormDataContentType(), nil
}
