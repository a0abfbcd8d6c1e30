// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired is returned when the stored access token has expired
	ErrTokenExpired = errors.New("access token has expired")
	// ErrNoToken is returned when the token store holds no access token
	ErrNoToken = errors.New("no access token")
)

// expiryLeeway treats tokens that expire this soon as already expired
const expiryLeeway = 30 * time.Second

// StaticToken is a fixed bearer token
type StaticToken string

// Token returns the token unchanged
func (t StaticToken) Token(_ context.Context) (string, error) {
	if t == "" {
		return "", ErrNoToken
	}

	return string(t), nil
}

// FileTokenStore reads the access token saved by the web login, a JSON
// document of the form {"access":{"token":"..."}}
type FileTokenStore struct {
	path string
	now  func() time.Time
}

type storedTokens struct {
	Access struct {
		Token string `json:"token"`
	} `json:"access"`
}

// NewFileTokenStore creates a token store reading path on every request
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path, now: time.Now}
}

// Token reads the access token and rejects it when it has expired
func (s *FileTokenStore) Token(_ context.Context) (string, error) {
	tb, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("could not read token store: %w", err)
	}

	var stored storedTokens
	err = json.Unmarshal(tb, &stored)
	if err != nil {
		return "", fmt.Errorf("invalid token store %s: %w", s.path, err)
	}

	if stored.Access.Token == "" {
		return "", fmt.Errorf("%s: %w", s.path, ErrNoToken)
	}

	exp, err := tokenExpiry(stored.Access.Token)
	if err != nil {
		return "", fmt.Errorf("invalid access token in %s: %w", s.path, err)
	}

	if !exp.IsZero() && !s.now().Add(expiryLeeway).Before(exp) {
		return "", fmt.Errorf("%w at %s, log in again", ErrTokenExpired, exp.Format(time.RFC3339))
	}

	return stored.Access.Token, nil
}

// tokenExpiry reads the exp claim without verifying the signature, only the
// backend holds the signing key. A zero time means the token never expires.
func tokenExpiry(token string) (time.Time, error) {
	var claims jwt.RegisteredClaims

	_, _, err := jwt.NewParser().ParseUnverified(token, &claims)
	if err != nil {
		return time.Time{}, err
	}

	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}

	return claims.ExpiresAt.Time, nil
}
