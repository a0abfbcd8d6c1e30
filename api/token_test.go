// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("FileTokenStore", func() {
	var (
		path  string
		store *FileTokenStore
		now   time.Time
	)

	signed := func(exp time.Time) string {
		GinkgoHelper()

		claims := jwt.RegisteredClaims{Subject: "u1", IssuedAt: jwt.NewNumericDate(now.Add(-time.Hour))}
		if !exp.IsZero() {
			claims.ExpiresAt = jwt.NewNumericDate(exp)
		}

		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("backend secret"))
		Expect(err).ToNot(HaveOccurred())

		return token
	}

	save := func(body string) {
		GinkgoHelper()
		Expect(os.WriteFile(path, []byte(body), 0600)).To(Succeed())
	}

	BeforeEach(func() {
		now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		path = filepath.Join(GinkgoT().TempDir(), "token.json")
		store = NewFileTokenStore(path)
		store.now = func() time.Time { return now }
	})

	It("Should return valid tokens", func() {
		token := signed(now.Add(time.Hour))
		save(`{"access":{"token":"` + token + `"}}`)

		t, err := store.Token(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(t).To(Equal(token))
	})

	It("Should accept tokens without expiry", func() {
		save(`{"access":{"token":"` + signed(time.Time{}) + `"}}`)

		_, err := store.Token(context.Background())
		Expect(err).ToNot(HaveOccurred())
	})

	It("Should reject expired and nearly expired tokens", func() {
		save(`{"access":{"token":"` + signed(now.Add(-time.Minute)) + `"}}`)
		_, err := store.Token(context.Background())
		Expect(err).To(MatchError(ErrTokenExpired))

		save(`{"access":{"token":"` + signed(now.Add(10*time.Second)) + `"}}`)
		_, err = store.Token(context.Background())
		Expect(err).To(MatchError(ErrTokenExpired))
	})

	It("Should fail for missing, empty and malformed stores", func() {
		_, err := store.Token(context.Background())
		Expect(err).To(MatchError(os.ErrNotExist))

		save(`{"access":{}}`)
		_, err = store.Token(context.Background())
		Expect(err).To(MatchError(ErrNoToken))

		save(`{"access":{"token":"not a jwt"}}`)
		_, err = store.Token(context.Background())
		Expect(err).To(MatchError(ContainSubstring("invalid access token")))

		save(`nope`)
		_, err = store.Token(context.Background())
		Expect(err).To(MatchError(ContainSubstring("invalid token store")))
	})
})
