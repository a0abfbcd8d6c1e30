// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package forms

//go:generate mockgen -source fill.go -destination mock_surveyor_test.go -package forms -typed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/AlecAivazis/survey/v2"
	"github.com/choria-io/formstate/answers"
	"github.com/choria-io/formstate/internal/validator"
	"github.com/choria-io/formstate/upload"
	"github.com/kballard/go-shellquote"
)

// surveyor abstracts the survey library for testability.
type surveyor interface {
	AskOne(p survey.Prompt, response any, opts ...survey.AskOpt) error
}

type defaultSurveyor struct{}

func (d *defaultSurveyor) AskOne(p survey.Prompt, response any, opts ...survey.AskOpt) error {
	return survey.AskOne(p, response, opts...)
}

// FillOption configures Fill
type FillOption func(*filler)

// WithFillOutput writes descriptions and notices to w, defaults to stdout
func WithFillOutput(w io.Writer) FillOption {
	return withOutput(w)
}

func withSurveyor(s surveyor) FillOption {
	return func(f *filler) {
		f.surveyor = s
	}
}

func withIsTerminal(fn func() bool) FillOption {
	return func(f *filler) {
		f.isTerminal = fn
	}
}

func withOutput(w io.Writer) FillOption {
	return func(f *filler) {
		f.output = w
	}
}

func withReadFile(fn func(string) ([]byte, error)) FillOption {
	return func(f *filler) {
		f.readFile = fn
	}
}

type filler struct {
	s          *Session
	surveyor   surveyor
	isTerminal func() bool
	output     io.Writer
	readFile   func(string) ([]byte, error)
}

// Fill interactively asks every visible field of the session form on the
// terminal, writing answers through the session controllers. Image fields
// take space separated file paths. The result of validating the whole form
// is returned once all sections were asked.
func Fill(ctx context.Context, s *Session, opts ...FillOption) error {
	f := &filler{
		s:          s,
		surveyor:   &defaultSurveyor{},
		isTerminal: isTerminal,
		output:     os.Stdout,
		readFile:   os.ReadFile,
	}

	for _, o := range opts {
		o(f)
	}

	if !f.isTerminal() {
		return fmt.Errorf("can only fill forms on a valid terminal")
	}

	form := s.Form()

	d, err := renderTemplate(form.Description, f.env(SectionScope("")))
	if err != nil {
		return err
	}
	if d != "" {
		fmt.Fprintln(f.output, d)
		fmt.Fprintln(f.output)
	}

	for _, sect := range form.Sections {
		fmt.Fprintln(f.output, colorMarkup(fmt.Sprintf("{bold}%s{/bold}", sect.SectionName)))
		if sect.Description != "" {
			fmt.Fprintln(f.output, colorMarkup(sect.Description))
		}
		fmt.Fprintln(f.output)

		for _, fld := range sect.Fields {
			if err := ctx.Err(); err != nil {
				return err
			}

			if !s.Visible(sect.SectionName, fld.Label) {
				continue
			}

			c, err := s.Mount(sect.SectionName, fld.Label)
			if err != nil {
				return err
			}

			err = f.ask(ctx, c)
			if err != nil {
				return err
			}
		}
	}

	return s.Validate()
}

func (f *filler) env(scope Scope) map[string]any {
	return expressionEnv(f.s.store, scope)
}

func (f *filler) describe(fld Field, scope Scope) error {
	if fld.Description == "" {
		return nil
	}

	d, err := fld.RenderedDescription(f.env(scope))
	if err != nil {
		return err
	}

	fmt.Fprintln(f.output)
	fmt.Fprintln(f.output, d)
	fmt.Fprintln(f.output)

	return nil
}

func (f *filler) ask(ctx context.Context, c Controller) error {
	err := f.describe(c.Field(), c.Scope())
	if err != nil {
		return err
	}

	switch ctl := c.(type) {
	case *TextController:
		return f.askText(ctl)
	case *NumberController:
		return f.askNumber(ctl)
	case *SelectController:
		return f.askSelect(ctl)
	case *MultiSelectController:
		return f.askMultiSelect(ctl)
	case *ImageController:
		return f.askImages(ctx, ctl)
	case *MatrixController:
		return f.askMatrix(ctx, ctl)
	default:
		return fmt.Errorf("%s: %w %T", c.Field().Label, ErrUnknownResponseType, c)
	}
}

func (f *filler) validators(fld Field, extra string) []survey.AskOpt {
	var opts []survey.AskOpt

	if fld.IsRequired {
		opts = append(opts, survey.WithValidator(survey.Required))
	}

	if extra != "" {
		opts = append(opts, survey.WithValidator(validator.SurveyValidator(extra, fld.IsRequired)))
	}

	return opts
}

// retry re-asks while set rejects the answer as unusable, validation
// failures of stored answers are shown and left for the final validation
func (f *filler) retry(ask func() (string, error), set func(string) error) error {
	for {
		ans, err := ask()
		if err != nil {
			return err
		}

		err = set(ans)
		if err == nil {
			return nil
		}

		fmt.Fprintln(f.output, colorMarkup(fmt.Sprintf("{red}%v{/red}", err)))

		if !errors.Is(err, ErrInvalidNumber) && !errors.Is(err, ErrInvalidDate) {
			return nil
		}
	}
}

func (f *filler) askText(c *TextController) error {
	fld := c.Field()

	expression := ""
	if fld.Type() == DateResponse {
		expression = "isDate(value)"
	}

	cur, _ := c.Value()
	dflt, _ := cur.(string)

	return f.retry(func() (string, error) {
		var ans string
		err := f.surveyor.AskOne(&survey.Input{
			Message: fld.Label,
			Help:    fld.Placeholder,
			Default: dflt,
		}, &ans, f.validators(fld, expression)...)

		return ans, err
	}, c.Set)
}

func (f *filler) askNumber(c *NumberController) error {
	fld := c.Field()

	dflt := ""
	if cur, ok := c.Value(); ok {
		if n, ok := answers.Number(cur); ok {
			dflt = strconv.FormatFloat(n, 'f', -1, 64)
		}
	}

	return f.retry(func() (string, error) {
		var ans string
		err := f.surveyor.AskOne(&survey.Input{
			Message: fld.Label,
			Help:    fld.Placeholder,
			Default: dflt,
		}, &ans, f.validators(fld, "isFloat(value)")...)

		return ans, err
	}, c.Set)
}

func (f *filler) askSelect(c *SelectController) error {
	fld := c.Field()

	options := c.Options()
	if len(options) == 0 {
		fmt.Fprintf(f.output, "No options available for %s\n", fld.Label)
		return nil
	}

	var dflt any
	if cur, ok := c.Value(); ok {
		if s, ok := cur.(string); ok && isOneOf(s, options...) {
			dflt = s
		}
	}

	var ans string
	err := f.surveyor.AskOne(&survey.Select{
		Message: fld.Label,
		Help:    fld.Placeholder,
		Options: options,
		Default: dflt,
	}, &ans, f.validators(fld, "")...)
	if err != nil {
		return err
	}

	return c.Select(ans)
}

func (f *filler) askMultiSelect(c *MultiSelectController) error {
	fld := c.Field()

	options := c.Options()
	if len(options) == 0 {
		fmt.Fprintf(f.output, "No options available for %s\n", fld.Label)
		return nil
	}

	var ans []string
	err := f.surveyor.AskOne(&survey.MultiSelect{
		Message: fld.Label,
		Help:    fld.Placeholder,
		Options: options,
	}, &ans, f.validators(fld, "")...)
	if err != nil {
		return err
	}

	return c.Select(ans...)
}

func (f *filler) askImages(ctx context.Context, c *ImageController) error {
	fld := c.Field()

	for len(c.Staged()) < c.MaxImages() {
		remaining := c.MaxImages() - len(c.Staged())

		var opts []survey.AskOpt
		if fld.IsRequired && len(c.Staged()) == 0 {
			opts = append(opts, survey.WithValidator(survey.Required))
		}

		var ans string
		err := f.surveyor.AskOne(&survey.Input{
			Message: fmt.Sprintf("%s (up to %d image files)", fld.Label, remaining),
			Help:    "Space separated list of image files, quote paths containing spaces",
		}, &ans, opts...)
		if err != nil {
			return err
		}

		paths, err := shellquote.Split(ans)
		if err != nil {
			fmt.Fprintln(f.output, colorMarkup(fmt.Sprintf("{red}%v{/red}", err)))
			continue
		}

		if len(paths) == 0 {
			return nil
		}

		var files []upload.File
		for _, p := range paths {
			data, err := f.readFile(p)
			if err != nil {
				fmt.Fprintln(f.output, colorMarkup(fmt.Sprintf("{red}%v{/red}", err)))
				continue
			}
			files = append(files, upload.File{Name: filepath.Base(p), Data: data})
		}

		if len(files) == 0 {
			continue
		}

		res, err := c.AddFiles(ctx, files...)
		switch {
		case errors.Is(err, ErrImageLimit):
			fmt.Fprintln(f.output, colorMarkup(fmt.Sprintf("{yellow}%v{/yellow}", err)))
			return nil
		case err != nil:
			return err
		}

		for _, fe := range res.Errors {
			fmt.Fprintln(f.output, colorMarkup(fmt.Sprintf("{red}%v{/red}", fe)))
		}
		for _, u := range res.URLs {
			fmt.Fprintf(f.output, "Uploaded %s\n", u)
		}

		if len(c.Staged()) >= c.MaxImages() {
			return nil
		}

		more, err := f.askConfirmation(fmt.Sprintf("Add more images to %s", fld.Label), false)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}

	return nil
}

func (f *filler) askMatrix(ctx context.Context, c *MatrixController) error {
	fld := c.Field()

	for row := 0; ; row++ {
		if row >= c.Rows() || (row == 0 && !fld.IsRequired) {
			prompt := fmt.Sprintf("Add additional '%s' entry", fld.Label)
			if row == 0 {
				prompt = fmt.Sprintf("Add first '%s' entry", fld.Label)
			}

			ok, err := f.askConfirmation(prompt, false)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}

			if row >= c.Rows() {
				c.AddRow()
			}
		}

		for _, child := range fld.Fields {
			ctl, err := c.Child(row, child.Label)
			if err != nil {
				return err
			}

			if !ctl.Visible() {
				continue
			}

			err = f.ask(ctx, ctl)
			if err != nil {
				return err
			}
		}
	}
}

func (f *filler) askConfirmation(prompt string, dflt bool) (bool, error) {
	ans := dflt

	err := f.surveyor.AskOne(&survey.Confirm{
		Message: prompt,
		Default: dflt,
	}, &ans)

	return ans, err
}
