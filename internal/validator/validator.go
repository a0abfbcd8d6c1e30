// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package validator evaluates boolean expr-lang expressions used by form
// fields for conditional visibility and answer validation
package validator

import (
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/expr-lang/expr"
)

// DateLayout is the layout date answers are stored in
const DateLayout = "2006-01-02"

var functions = []expr.Option{
	expr.Function("isInt", func(params ...any) (any, error) {
		_, err := strconv.Atoi(fmt.Sprint(params[0]))
		return err == nil, nil
	}, new(func(any) bool)),

	expr.Function("isFloat", func(params ...any) (any, error) {
		_, err := strconv.ParseFloat(fmt.Sprint(params[0]), 64)
		return err == nil, nil
	}, new(func(any) bool)),

	expr.Function("isDate", func(params ...any) (any, error) {
		_, err := time.Parse(DateLayout, fmt.Sprint(params[0]))
		return err == nil, nil
	}, new(func(any) bool)),

	expr.Function("isEmail", func(params ...any) (any, error) {
		_, err := mail.ParseAddress(fmt.Sprint(params[0]))
		return err == nil, nil
	}, new(func(any) bool)),

	expr.Function("isEmpty", func(params ...any) (any, error) {
		return IsEmpty(params[0]), nil
	}, new(func(any) bool)),
}

// Validate compiles expression against env and returns its boolean result
func Validate(env map[string]any, expression string) (bool, error) {
	if env == nil {
		env = map[string]any{}
	}

	opts := append([]expr.Option{expr.Env(env), expr.AsBool()}, functions...)

	program, err := expr.Compile(expression, opts...)
	if err != nil {
		return false, fmt.Errorf("invalid expression %q: %w", expression, err)
	}

	res, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("expression %q failed: %w", expression, err)
	}

	ok, isBool := res.(bool)
	if !isBool {
		return false, fmt.Errorf("expression %q did not return a boolean", expression)
	}

	return ok, nil
}

// ValidateValue evaluates expression with value bound to "value" in addition to env
func ValidateValue(value any, env map[string]any, expression string) (bool, error) {
	e := make(map[string]any, len(env)+1)
	for k, v := range env {
		e[k] = v
	}
	e["value"] = value

	return Validate(e, expression)
}

// SurveyValidator creates a survey prompt validator from expression. Empty
// answers pass when required is false.
func SurveyValidator(expression string, required bool) survey.Validator {
	return func(ans any) error {
		if !required && IsEmpty(ans) {
			return nil
		}

		ok, err := ValidateValue(ans, nil, expression)
		if err != nil {
			return err
		}

		if !ok {
			return fmt.Errorf("validation using %q did not pass", expression)
		}

		return nil
	}
}

// IsEmpty reports whether v is an empty answer
func IsEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []string:
		return len(val) == 0
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	case survey.OptionAnswer:
		return val.Value == ""
	case []survey.OptionAnswer:
		return len(val) == 0
	default:
		return false
	}
}
