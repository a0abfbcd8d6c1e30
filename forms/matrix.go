// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package forms

import (
	"errors"
	"fmt"

	"github.com/choria-io/formstate/answers"
)

// Scope locates answers either at the top level of a section or in one row of a matrix question
type Scope struct {
	Section string
	// Parent is the matrix question, empty at the top level
	Parent string
	Row    int
}

// SectionScope is the top level scope of section
func SectionScope(section string) Scope {
	return Scope{Section: section}
}

// InMatrix is true when the scope is a matrix row
func (s Scope) InMatrix() bool {
	return s.Parent != ""
}

// RowScope is the scope of row of the matrix question parent in the same section
func (s Scope) RowScope(parent string, row int) Scope {
	return Scope{Section: s.Section, Parent: parent, Row: row}
}

// Target addresses question within the scope
func (s Scope) Target(question string) answers.Target {
	if !s.InMatrix() {
		return answers.TopLevel{Section: s.Section, Question: question}
	}

	return answers.Matrix{Section: s.Section, Parent: s.Parent, Row: s.Row, Question: question}
}

// Key is the validation key of the field label in this scope
func (s Scope) Key(label string) string {
	switch {
	case !s.InMatrix():
		return label
	case s.Row == 0:
		return s.Parent + label
	default:
		return fmt.Sprintf("%s%s#%d", s.Parent, label, s.Row)
	}
}

// MatrixController coordinates the child fields of a repeating matrix question
type MatrixController struct {
	base

	added int
}

// Rows is the number of rows, at least one and including rows added but not yet answered
func (c *MatrixController) Rows() int {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	return c.rows()
}

func (c *MatrixController) rows() int {
	return max(1, c.s.store.Rows(c.scope.Section, c.field.Label), c.added)
}

// AddRow appends an empty row and returns its index
func (c *MatrixController) AddRow() int {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	c.added = c.rows() + 1

	return c.added - 1
}

// Child mounts the controller for the child field label in row
func (c *MatrixController) Child(row int, label string) (Controller, error) {
	if row < 0 || row >= c.Rows() {
		return nil, fmt.Errorf("%s: row %d does not exist", c.field.Label, row)
	}

	child, ok := c.field.Child(label)
	if !ok {
		return nil, fmt.Errorf("%s: unknown field %q", c.field.Label, label)
	}

	return c.s.mount(child, c.scope.RowScope(c.field.Label, row))
}

// Value is the list of row answers keyed by child question
func (c *MatrixController) Value() (any, bool) {
	rows, ok := c.s.store.SectionDocument(c.scope.Section)[c.field.Label].([]any)
	if !ok || len(rows) == 0 {
		return nil, false
	}

	return rows, true
}

func (s *Session) validateMatrix(f Field, scope Scope) error {
	rows := s.store.Rows(scope.Section, f.Label)

	if rows == 0 {
		if f.IsRequired {
			return requiredError(f)
		}
		return nil
	}

	var errs []error
	for row := 0; row < rows; row++ {
		rs := scope.RowScope(f.Label, row)
		for _, child := range f.Fields {
			err := s.validateField(child, rs)
			if err != nil {
				errs = append(errs, fmt.Errorf("row %d: %w", row, err))
			}
		}
	}

	return errors.Join(errs...)
}
