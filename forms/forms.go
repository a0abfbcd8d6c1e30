// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package forms renders server defined form schemas into field controllers
// that read and write a shared answers.Store.
//
// A Form is an ordered list of sections, each holding fields of a given
// ResponseType. Select fields may override their options through
// ConditionalOptions rules that watch earlier answers, any field may be hidden
// by a Conditional expression, and matrix fields repeat a group of child
// fields in rows stored under the matrix question.
//
// A Session owns the answer store for one form filling session and mounts a
// Controller per field. Controllers write through the two store operations
// only, every change triggers revalidation of the changed field and of the
// fields watching it.
package forms

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"text/template"

	"github.com/choria-io/formstate/internal/sprig"
	"gopkg.in/yaml.v3"
)

// ResponseType identifies the kind of control a field is rendered as
type ResponseType string

const (
	TextResponse         ResponseType = "text"
	NumberResponse       ResponseType = "number"
	DateResponse         ResponseType = "date"
	SingleSelectResponse ResponseType = "singleSelect"
	MultiSelectResponse  ResponseType = "multiSelect"
	MatrixResponse       ResponseType = "matrix"
	ProfileImageResponse ResponseType = "profileImage"
)

// Form is a complete form definition
type Form struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	Sections    []Section `json:"sections" yaml:"sections"`
}

// Section groups the fields stored under one section name
type Section struct {
	SectionName string  `json:"sectionName" yaml:"sectionName"`
	Description string  `json:"description" yaml:"description"`
	Fields      []Field `json:"fields" yaml:"fields"`
}

// Check compares the current answer of the question Label to Value
type Check struct {
	Label string `json:"label" yaml:"label"`
	Value any    `json:"value" yaml:"value"`
}

// ConditionalOption activates Options when every Check matches
type ConditionalOption struct {
	Check   []Check  `json:"check" yaml:"check"`
	Options []string `json:"options" yaml:"options"`
}

// Field describes one renderable question. Label is also the question name
// the answer is stored under.
type Field struct {
	Label              string              `json:"label" yaml:"label"`
	Description        string              `json:"description" yaml:"description"`
	Placeholder        string              `json:"placeholder" yaml:"placeholder"`
	IsRequired         bool                `json:"isRequired" yaml:"isRequired"`
	ErrorMessage       string              `json:"errorMessage" yaml:"errorMessage"`
	ResponseType       ResponseType        `json:"responseType" yaml:"responseType"`
	Options            []string            `json:"options" yaml:"options"`
	ConditionalOptions []ConditionalOption `json:"conditionalOptions" yaml:"conditionalOptions"`
	// Conditional is an expression deciding if the field is shown, see Visible
	Conditional string `json:"conditional" yaml:"conditional"`
	// Validation is an expression the answer, available as value, has to satisfy
	Validation string `json:"validation" yaml:"validation"`
	// MaxImages overrides the session image limit for image fields
	MaxImages int `json:"maxImages" yaml:"maxImages"`
	// Fields are the child questions of a matrix field
	Fields []Field `json:"fields" yaml:"fields"`
}

// Type is the response type with the default applied, fields without one are text
func (f Field) Type() ResponseType {
	if f.ResponseType == "" {
		return TextResponse
	}

	return f.ResponseType
}

// Child finds the matrix child field by label
func (f Field) Child(label string) (Field, bool) {
	for _, c := range f.Fields {
		if c.Label == label {
			return c, true
		}
	}

	return Field{}, false
}

// RenderedDescription executes the field Description as a Go template with
// Sprig functions against env and applies color markup to the result
func (f Field) RenderedDescription(env map[string]any) (string, error) {
	return renderTemplate(f.Description, env)
}

// Section finds a section by name
func (f Form) Section(name string) (Section, bool) {
	for _, s := range f.Sections {
		if s.SectionName == name {
			return s, true
		}
	}

	return Section{}, false
}

// Field finds a field by label
func (s Section) Field(label string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Label == label {
			return f, true
		}
	}

	return Field{}, false
}

// Validate checks the form for structural problems: missing or duplicate
// section names and labels, unknown response types, matrix fields without
// children or nested matrices, and select fields without any options
func (f *Form) Validate() error {
	if len(f.Sections) == 0 {
		return fmt.Errorf("no sections defined")
	}

	seen := map[string]bool{}
	for _, s := range f.Sections {
		if s.SectionName == "" {
			return fmt.Errorf("section name is required")
		}
		if seen[s.SectionName] {
			return fmt.Errorf("duplicate section %q", s.SectionName)
		}
		seen[s.SectionName] = true

		err := validateFields(s.SectionName, s.Fields, false)
		if err != nil {
			return err
		}
	}

	return nil
}

func validateFields(path string, fields []Field, inMatrix bool) error {
	labels := map[string]bool{}

	for _, fld := range fields {
		if fld.Label == "" {
			return fmt.Errorf("%s: field label is required", path)
		}
		if labels[fld.Label] {
			return fmt.Errorf("%s: duplicate field %q", path, fld.Label)
		}
		labels[fld.Label] = true

		switch fld.Type() {
		case TextResponse, NumberResponse, DateResponse, ProfileImageResponse:

		case SingleSelectResponse, MultiSelectResponse:
			if len(fld.Options) == 0 && len(fld.ConditionalOptions) == 0 {
				return fmt.Errorf("%s: %s has no options", path, fld.Label)
			}

		case MatrixResponse:
			if inMatrix {
				return fmt.Errorf("%s: nested matrix %s is not supported", path, fld.Label)
			}
			if len(fld.Fields) == 0 {
				return fmt.Errorf("%s: matrix %s has no fields", path, fld.Label)
			}

			err := validateFields(path+"/"+fld.Label, fld.Fields, true)
			if err != nil {
				return err
			}

		default:
			return fmt.Errorf("%s: %w %q", path, ErrUnknownResponseType, fld.ResponseType)
		}
	}

	return nil
}

// LoadReader reads a YAML or JSON form definition from r
func LoadReader(r io.Reader) (*Form, error) {
	fb, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	return LoadBytes(fb)
}

// LoadFile reads a YAML or JSON form definition from the file f
func LoadFile(f string) (*Form, error) {
	fb, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}

	return LoadBytes(fb)
}

// LoadBytes parses a YAML or JSON form definition and validates it
func LoadBytes(f []byte) (*Form, error) {
	var form Form
	err := yaml.Unmarshal(f, &form)
	if err != nil {
		return nil, err
	}

	err = form.Validate()
	if err != nil {
		return nil, err
	}

	return &form, nil
}

func renderTemplate(tmpl string, env map[string]any) (string, error) {
	t, err := template.New("form").Funcs(sprig.FuncMap()).Parse(tmpl)
	if err != nil {
		return "", err
	}

	out := bytes.NewBuffer([]byte{})

	err = t.Execute(out, env)
	if err != nil {
		return "", err
	}

	return colorMarkup(out.String()), nil
}
