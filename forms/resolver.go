// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package forms

import (
	"github.com/choria-io/formstate/answers"
	"github.com/choria-io/formstate/internal/validator"
)

// AnswerReader gives read access to current answers
type AnswerReader interface {
	Answer(t answers.Target) (any, bool)
}

// DocumentReader gives read access to answers as nested maps for expression evaluation
type DocumentReader interface {
	Document() map[string]any
	SectionDocument(section string) map[string]any
	RowDocument(section string, parent string, row int) map[string]any
}

// ResolveOptions evaluates the ConditionalOptions rules of f in declared
// order. A rule is satisfied when every check names a question in scope whose
// current answer equals the check value. The options of all satisfied rules
// are returned concatenated, duplicates included. When no rule is satisfied
// nil is returned and callers fall back to f.Options.
func ResolveOptions(f Field, r AnswerReader, scope Scope) []string {
	var res []string
	matched := false

	for _, rule := range f.ConditionalOptions {
		if !ruleSatisfied(rule, r, scope) {
			continue
		}

		matched = true
		res = append(res, rule.Options...)
	}

	if !matched {
		return nil
	}

	if res == nil {
		res = []string{}
	}

	return res
}

// Options is the current option domain of f, the resolved conditional options or the base options
func Options(f Field, r AnswerReader, scope Scope) []string {
	if opts := ResolveOptions(f, r, scope); opts != nil {
		return opts
	}

	return f.Options
}

func ruleSatisfied(rule ConditionalOption, r AnswerReader, scope Scope) bool {
	for _, check := range rule.Check {
		ans, ok := r.Answer(scope.Target(check.Label))
		if !ok || !equalAnswer(ans, check.Value) {
			return false
		}
	}

	return true
}

// Visible evaluates the Conditional expression of f. The expression sees the
// current section as input, every section as form and, inside a matrix, the
// current row as row. Fields without an expression are always visible.
func Visible(f Field, doc DocumentReader, scope Scope) (bool, error) {
	if f.Conditional == "" {
		return true, nil
	}

	return validator.Validate(expressionEnv(doc, scope), f.Conditional)
}

func expressionEnv(doc DocumentReader, scope Scope) map[string]any {
	env := map[string]any{
		"input": doc.SectionDocument(scope.Section),
		"form":  doc.Document(),
		"row":   map[string]any{},
	}
	env["Input"] = env["input"]

	if scope.InMatrix() {
		env["row"] = doc.RowDocument(scope.Section, scope.Parent, scope.Row)
	}

	return env
}

// equalAnswer compares scalar answers, numbers compare by value regardless of
// their Go type. Lists never compare equal.
func equalAnswer(a any, b any) bool {
	af, aNum := answers.Number(a)
	bf, bNum := answers.Number(b)
	if aNum || bNum {
		return aNum && bNum && af == bf
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return false
	}
}
