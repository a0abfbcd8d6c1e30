// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package answers holds the normalized answer document of a form session.
//
// The document is an ordered list of sections, each holding an ordered list of
// responses. A response answer is a scalar (string, number, bool), a list of
// strings (multi-select values or image URLs) or, for matrix questions, a list
// of nested responses making up one row. A matrix question may appear more than
// once in a section, every occurrence is one row of the matrix.
//
// All mutation goes through Store.UpdateField and Store.UpdateMatrixField, the
// Store never fails an update: missing sections, questions and rows are
// created on first write. Lookups on paths that do not exist report the
// question as unanswered.
package answers

import (
	"bytes"
	"encoding/json"
)

// Response is one answered, or not yet answered, question.
type Response struct {
	Question string `json:"question" yaml:"question"`
	Answer   any    `json:"answer" yaml:"answer"`
}

// Section is a named group of responses
type Section struct {
	SectionName string     `json:"sectionName" yaml:"sectionName"`
	Responses   []Response `json:"responses" yaml:"responses"`
}

// UnmarshalJSON decodes a response restoring the answer shapes the Store
// works with: nested responses for matrix rows and string lists for
// multi value answers.
func (r *Response) UnmarshalJSON(data []byte) error {
	var raw struct {
		Question string          `json:"question"`
		Answer   json.RawMessage `json:"answer"`
	}

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}

	r.Question = raw.Question
	r.Answer = nil

	if len(bytes.TrimSpace(raw.Answer)) == 0 {
		return nil
	}

	var ans any
	err = json.Unmarshal(raw.Answer, &ans)
	if err != nil {
		return err
	}

	r.Answer = Normalize(ans)

	return nil
}

// Normalize converts generically decoded data, such as the result of decoding
// JSON or YAML into an any, into the answer shapes used by the Store
func Normalize(v any) any {
	switch val := v.(type) {
	case []any:
		return normalizeList(val)

	case []string:
		return append([]string{}, val...)

	case []Response:
		return copyResponses(val)

	default:
		if n, ok := Number(v); ok {
			return n
		}
		return v
	}
}

// Number converts any Go numeric value to float64, the shape numbers take
// after being decoded from JSON
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// matrixParents are the questions in resps answered with matrix rows
func matrixParents(resps []Response) map[string]bool {
	parents := map[string]bool{}
	for _, r := range resps {
		if _, ok := r.Answer.([]Response); ok {
			parents[r.Question] = true
		}
	}

	return parents
}

// isEmptyList is true for an empty list answer, an empty matrix row decodes as one
func isEmptyList(v any) bool {
	switch val := v.(type) {
	case []string:
		return len(val) == 0
	case []any:
		return len(val) == 0
	default:
		return false
	}
}

// restoreRows gives empty lists answering a matrix question the row shape
func restoreRows(resps []Response) {
	parents := matrixParents(resps)

	for i, r := range resps {
		if parents[r.Question] && isEmptyList(r.Answer) {
			resps[i].Answer = []Response{}
		}
	}
}

func normalizeList(list []any) any {
	if len(list) == 0 {
		return []string{}
	}

	strs := make([]string, 0, len(list))
	for _, e := range list {
		s, ok := e.(string)
		if !ok {
			break
		}
		strs = append(strs, s)
	}
	if len(strs) == len(list) {
		return strs
	}

	resps := make([]Response, 0, len(list))
	for _, e := range list {
		r, ok := asResponse(e)
		if !ok {
			break
		}
		resps = append(resps, r)
	}
	if len(resps) == len(list) {
		return resps
	}

	res := make([]any, len(list))
	for i, e := range list {
		res[i] = Normalize(e)
	}

	return res
}

func asResponse(v any) (Response, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return Response{}, false
	}

	q, ok := m["question"].(string)
	if !ok {
		return Response{}, false
	}

	for k := range m {
		if k != "question" && k != "answer" {
			return Response{}, false
		}
	}

	return Response{Question: q, Answer: Normalize(m["answer"])}, true
}
