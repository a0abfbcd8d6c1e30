// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package answers

import (
	"fmt"
)

// Target addresses one answer in the document, it is either a TopLevel or a
// Matrix value
type Target interface {
	// SectionName is the section holding the answer
	SectionName() string
	// QuestionName is the question being answered, for matrix targets this is the child question
	QuestionName() string
	// String is a human readable form of the address
	String() string

	isTarget()
}

// TopLevel addresses a question directly inside a section
type TopLevel struct {
	Section  string
	Question string
}

func (t TopLevel) SectionName() string  { return t.Section }
func (t TopLevel) QuestionName() string { return t.Question }
func (t TopLevel) String() string       { return fmt.Sprintf("%s/%s", t.Section, t.Question) }
func (TopLevel) isTarget()              {}

// Matrix addresses a child question inside one row of a repeating matrix
// question. Row is the zero based occurrence of the Parent question in the section.
type Matrix struct {
	Section  string
	Parent   string
	Row      int
	Question string
}

func (t Matrix) SectionName() string  { return t.Section }
func (t Matrix) QuestionName() string { return t.Question }
func (t Matrix) String() string {
	return fmt.Sprintf("%s/%s[%d]/%s", t.Section, t.Parent, t.Row, t.Question)
}
func (Matrix) isTarget() {}

// Update is a single dispatched change to the document
type Update struct {
	Target Target
	Answer any
	// Multiple merges list answers into an existing list rather than replacing it, only used for TopLevel targets
	Multiple bool
}

// Change describes a mutation that was applied to the Store
type Change struct {
	Target   Target
	Previous any
	Current  any
	// Created is true when the write created the response
	Created bool
}
