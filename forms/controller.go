// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package forms

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/choria-io/formstate/answers"
	"github.com/choria-io/formstate/internal/validator"
)

var (
	// ErrRequired indicates a required field has no answer
	ErrRequired = errors.New("answer is required")
	// ErrInvalidOption indicates a selection outside of the current option domain
	ErrInvalidOption = errors.New("invalid option")
	// ErrInvalidNumber indicates a number field received a non numeric value
	ErrInvalidNumber = errors.New("invalid number")
	// ErrInvalidDate indicates a date field received a value not in DateLayout
	ErrInvalidDate = errors.New("invalid date")
	// ErrValidationFailed indicates the Validation expression of a field did not pass
	ErrValidationFailed = errors.New("validation failed")
	// ErrUnknownResponseType indicates a field type no controller exists for
	ErrUnknownResponseType = errors.New("unknown response type")
	// ErrImageLimit indicates the image field already holds its maximum number of images
	ErrImageLimit = errors.New("image limit reached")
	// ErrFileTooLarge indicates a compressed image exceeds the size threshold
	ErrFileTooLarge = errors.New("file too large")
	// ErrDetached indicates the controller was unmounted while work was in flight
	ErrDetached = errors.New("controller detached")
	// ErrNoUploader indicates an image field was used without an uploader configured
	ErrNoUploader = errors.New("no image uploader configured")
)

// DateLayout is the layout date answers are stored in
const DateLayout = validator.DateLayout

// Controller binds one field in one scope to the session answer store
type Controller interface {
	// Field is the schema descriptor of the field
	Field() Field
	// Scope is where the answer lives, top level or a matrix row
	Scope() Scope
	// Key is the validation key passed to the trigger
	Key() string
	// Target is the store address of the answer
	Target() answers.Target
	// Value is the current answer, ok is false when unanswered
	Value() (answer any, ok bool)
	// Validate checks the current answer against the field rules
	Validate() error
	// Visible evaluates the conditional expression of the field
	Visible() bool

	detach()
}

type base struct {
	s      *Session
	field  Field
	scope  Scope
	ctx    context.Context
	cancel context.CancelFunc
}

func newBase(s *Session, f Field, scope Scope) base {
	ctx, cancel := context.WithCancel(s.ctx)

	return base{s: s, field: f, scope: scope, ctx: ctx, cancel: cancel}
}

func (b *base) Field() Field                  { return b.field }
func (b *base) Scope() Scope                  { return b.scope }
func (b *base) Key() string                   { return b.scope.Key(b.field.Label) }
func (b *base) Target() answers.Target        { return b.scope.Target(b.field.Label) }
func (b *base) Value() (any, bool)            { return b.s.store.Answer(b.Target()) }
func (b *base) Validate() error               { return b.s.validateField(b.field, b.scope) }
func (b *base) Visible() bool                 { return b.s.visible(b.field, b.scope) }
func (b *base) detach()                       { b.cancel() }
func (b *base) attached() bool                { return b.ctx.Err() == nil }
func (b *base) options() []string             { return Options(b.field, b.s.store, b.scope) }
func (b *base) commit(answer any, multi bool) { b.s.commit(b.Target(), answer, multi) }

// TextController edits text and date fields
type TextController struct {
	base
}

// Set stores value, dates have to be in DateLayout
func (c *TextController) Set(value string) error {
	if c.field.Type() == DateResponse && strings.TrimSpace(value) != "" {
		_, err := time.Parse(DateLayout, value)
		if err != nil {
			return fmt.Errorf("%s: %w %q", c.field.Label, ErrInvalidDate, value)
		}
	}

	c.commit(value, false)

	return c.Validate()
}

// NumberController edits number fields, answers are stored as float64
type NumberController struct {
	base
}

// Set parses value and stores the number, an empty value clears the answer
func (c *NumberController) Set(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		c.commit(nil, false)
		return c.Validate()
	}

	n, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("%s: %w %q", c.field.Label, ErrInvalidNumber, value)
	}

	return c.SetNumber(n)
}

// SetNumber stores n
func (c *NumberController) SetNumber(n float64) error {
	c.commit(n, false)

	return c.Validate()
}

// SelectController edits single select fields
type SelectController struct {
	base
}

// Options is the current option domain, resolved conditional options when a rule matches else the field options
func (c *SelectController) Options() []string {
	return c.options()
}

// Select stores option as the answer, it has to be one of Options
func (c *SelectController) Select(option string) error {
	if !slices.Contains(c.options(), option) {
		return fmt.Errorf("%s: %w %q", c.field.Label, ErrInvalidOption, option)
	}

	c.commit(option, false)

	return c.Validate()
}

// Clear removes the selection
func (c *SelectController) Clear() error {
	c.commit(nil, false)

	return c.Validate()
}

// MultiSelectController edits multi select fields
type MultiSelectController struct {
	base
}

// Options is the current option domain, resolved conditional options when a rule matches else the field options
func (c *MultiSelectController) Options() []string {
	return c.options()
}

// Select replaces the selection with options, each has to be one of Options
func (c *MultiSelectController) Select(options ...string) error {
	valid := c.options()
	selected := make([]string, 0, len(options))

	for _, o := range options {
		if !slices.Contains(valid, o) {
			return fmt.Errorf("%s: %w %q", c.field.Label, ErrInvalidOption, o)
		}
		if !slices.Contains(selected, o) {
			selected = append(selected, o)
		}
	}

	c.commit(selected, false)

	return c.Validate()
}

// Toggle adds option to the selection or removes it when already selected
func (c *MultiSelectController) Toggle(option string) error {
	cur, _ := c.Value()
	selected, _ := cur.([]string)

	idx := slices.Index(selected, option)
	if idx >= 0 {
		return c.Select(slices.Delete(selected, idx, idx+1)...)
	}

	return c.Select(append(selected, option)...)
}

// Clear removes the selection
func (c *MultiSelectController) Clear() error {
	c.commit([]string{}, false)

	return c.Validate()
}

// newController is the single point mapping response types to controllers
func newController(s *Session, f Field, scope Scope) (Controller, error) {
	b := newBase(s, f, scope)

	switch f.Type() {
	case TextResponse, DateResponse:
		return &TextController{base: b}, nil
	case NumberResponse:
		return &NumberController{base: b}, nil
	case SingleSelectResponse:
		return &SelectController{base: b}, nil
	case MultiSelectResponse:
		return &MultiSelectController{base: b}, nil
	case ProfileImageResponse:
		return newImageController(b), nil
	case MatrixResponse:
		if scope.InMatrix() {
			b.cancel()
			return nil, fmt.Errorf("%s: nested matrix fields are not supported", f.Label)
		}
		return &MatrixController{base: b}, nil
	default:
		b.cancel()
		return nil, fmt.Errorf("%s: %w %q", f.Label, ErrUnknownResponseType, f.ResponseType)
	}
}

func requiredError(f Field) error {
	if f.ErrorMessage != "" {
		return fmt.Errorf("%s: %w: %s", f.Label, ErrRequired, f.ErrorMessage)
	}

	return fmt.Errorf("%s: %w", f.Label, ErrRequired)
}

// checkAnswer verifies the shape of a present, non empty answer for f
func checkAnswer(f Field, val any, options []string, maxImages int) error {
	switch f.Type() {
	case NumberResponse:
		if _, ok := answers.Number(val); !ok {
			return fmt.Errorf("%s: %w %v", f.Label, ErrInvalidNumber, val)
		}

	case DateResponse:
		d, ok := val.(string)
		if !ok {
			return fmt.Errorf("%s: %w %v", f.Label, ErrInvalidDate, val)
		}
		_, err := time.Parse(DateLayout, d)
		if err != nil {
			return fmt.Errorf("%s: %w %q", f.Label, ErrInvalidDate, d)
		}

	case SingleSelectResponse:
		o, ok := val.(string)
		if !ok || !slices.Contains(options, o) {
			return fmt.Errorf("%s: %w %v", f.Label, ErrInvalidOption, val)
		}

	case MultiSelectResponse:
		sel, ok := val.([]string)
		if !ok {
			return fmt.Errorf("%s: %w %v", f.Label, ErrInvalidOption, val)
		}
		for _, o := range sel {
			if !slices.Contains(options, o) {
				return fmt.Errorf("%s: %w %q", f.Label, ErrInvalidOption, o)
			}
		}

	case ProfileImageResponse:
		if n := len(imageURLs(val)); n > maxImages {
			return fmt.Errorf("%s: %w: %d of %d", f.Label, ErrImageLimit, n, maxImages)
		}
	}

	return nil
}
