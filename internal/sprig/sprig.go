// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package sprig extends the sprig template functions with the helpers used
// by report templates
package sprig

import (
	"crypto/rand"
	"encoding/base64"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/google/uuid"
)

// FuncMap is the sprig text function map with uuidv4 and randBase64 added
func FuncMap() template.FuncMap {
	funcs := sprig.TxtFuncMap()
	funcs["uuidv4"] = uuidv4
	funcs["randBase64"] = randBase64

	return funcs
}

func randBase64(count int) (string, error) {
	buf := make([]byte, count)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(buf), nil
}

func uuidv4() string {
	return uuid.New().String()
}
