// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package report renders completed form answers through Go or Jet templates
// into a report file, optionally post processing the result with shell
// commands
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"text/template"

	"github.com/CloudyKit/jet/v6"
	"github.com/choria-io/formstate/answers"
	"github.com/choria-io/formstate/internal/sprig"
	"github.com/kballard/go-shellquote"
)

// Config configures a report
type Config struct {
	// Template is the template file to render, mutually exclusive with Source
	Template string `yaml:"template"`
	// Source is an in-memory template
	Source string `yaml:"source"`
	// Target is the file to write the rendered report to
	Target string `yaml:"target"`
	// Overwrite allows replacing an existing target
	Overwrite bool `yaml:"overwrite"`
	// SkipEmpty does not write reports that are empty after rendering
	SkipEmpty bool `yaml:"skip_empty"`
	// Post runs commands on the target when its base name matches the glob key
	Post []map[string]string `yaml:"post"`
	// CustomLeftDelimiter sets a custom template delimiter
	CustomLeftDelimiter string `yaml:"left_delimiter"`
	// CustomRightDelimiter sets a custom template delimiter
	CustomRightDelimiter string `yaml:"right_delimiter"`
}

type Logger interface {
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
}

// ErrSkippedEmpty is returned by RenderString for empty output when SkipEmpty is set
var ErrSkippedEmpty = errors.New("skipped rendering")

type engineType int

const (
	engineGoTemplate engineType = iota
	engineJet
)

// Data is passed to report templates
type Data struct {
	// Form is the name of the form
	Form string
	// Submission is the stored submission id, if any
	Submission string
	// Sections are the answers in submission shape
	Sections []answers.Section
	// Answers maps section names to question answers, matrix answers are lists of row maps
	Answers map[string]any

	store *answers.Store
}

// NewData prepares template data from the answers in sections
func NewData(form string, submission string, sections []answers.Section) Data {
	store := answers.NewFromSections(sections)

	return Data{
		Form:       form,
		Submission: submission,
		Sections:   store.Sections(),
		Answers:    store.Document(),
		store:      store,
	}
}

// Answer is the answer to question in section, nil when unanswered
func (d Data) Answer(section string, question string) any {
	if d.store == nil {
		return nil
	}

	v, _ := d.store.GetAnswer(section, question)

	return v
}

// Rows are the answers of every row of the matrix question in section
func (d Data) Rows(section string, matrix string) []map[string]any {
	if d.store == nil {
		return nil
	}

	n := d.store.Rows(section, matrix)
	rows := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, d.store.RowDocument(section, matrix, i))
	}

	return rows
}

// Report renders report templates
type Report struct {
	cfg      *Config
	engine   engineType
	funcs    template.FuncMap
	jetFuncs map[string]jet.Func
	log      Logger
}

// New creates a report using Go templates, funcs are added to the sprig functions
func New(cfg Config, funcs template.FuncMap) (*Report, error) {
	err := validateConfig(&cfg)
	if err != nil {
		return nil, err
	}

	return &Report{cfg: &cfg, funcs: funcs}, nil
}

// NewJet creates a report using the Jet template engine
func NewJet(cfg Config, funcs map[string]jet.Func) (*Report, error) {
	err := validateConfig(&cfg)
	if err != nil {
		return nil, err
	}

	return &Report{cfg: &cfg, engine: engineJet, jetFuncs: funcs}, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Target == "" {
		return fmt.Errorf("target is required")
	}

	var err error
	cfg.Target, err = filepath.Abs(cfg.Target)
	if err != nil {
		return fmt.Errorf("invalid target %s: %v", cfg.Target, err)
	}

	switch {
	case cfg.Template == "" && cfg.Source == "":
		return fmt.Errorf("no template provided")
	case cfg.Template != "" && cfg.Source != "":
		return fmt.Errorf("template and source are mutually exclusive")
	case cfg.Template != "":
		_, err := os.Stat(cfg.Template)
		if err != nil {
			return fmt.Errorf("cannot read template: %w", err)
		}
	}

	if (cfg.CustomLeftDelimiter == "") != (cfg.CustomRightDelimiter == "") {
		return fmt.Errorf("both delimiters are required")
	}

	if !cfg.Overwrite {
		_, err := os.Stat(cfg.Target)
		if err == nil {
			return fmt.Errorf("target %s exists", cfg.Target)
		}
	}

	return nil
}

// Logger configures a logger to use, no logging is done without this
func (r *Report) Logger(log Logger) {
	r.log = log
}

// Render renders the report into the target and post processes it, it
// returns the absolute path of the report or an empty string when skipped
func (r *Report) Render(ctx context.Context, data Data) (string, error) {
	tmpl := []byte(r.cfg.Source)
	name := "report"

	if r.cfg.Template != "" {
		var err error
		tmpl, err = os.ReadFile(r.cfg.Template)
		if err != nil {
			return "", err
		}
		name = filepath.Base(r.cfg.Template)
	}

	res, err := r.renderTemplateBytes(name, tmpl, data)
	switch {
	case errors.Is(err, ErrSkippedEmpty):
		if r.log != nil {
			r.log.Infof("Skipping empty report %v", r.cfg.Target)
		}
		return "", nil
	case err != nil:
		return "", err
	}

	err = os.MkdirAll(filepath.Dir(r.cfg.Target), 0755)
	if err != nil {
		return "", err
	}

	err = os.WriteFile(r.cfg.Target, res, 0644)
	if err != nil {
		return "", err
	}

	err = r.postFile(ctx, r.cfg.Target)
	if err != nil {
		return "", err
	}

	if r.log != nil {
		r.log.Infof("Rendered %s", r.cfg.Target)
	}

	return r.cfg.Target, nil
}

// RenderString renders str using the same functions and delimiters as the report
func (r *Report) RenderString(str string, data Data) (string, error) {
	res, err := r.renderTemplateBytes("string", []byte(str), data)
	if err != nil {
		return "", err
	}

	return string(res), nil
}

func (r *Report) templateFuncs(data Data) template.FuncMap {
	funcs := sprig.FuncMap()
	for k, v := range r.funcs {
		funcs[k] = v
	}

	funcs["answer"] = data.Answer
	funcs["rows"] = data.Rows

	return funcs
}

func (r *Report) jetTemplateFuncs(data Data) map[string]jet.Func {
	funcs := make(map[string]jet.Func)
	for k, v := range r.jetFuncs {
		funcs[k] = v
	}

	funcs["answer"] = func(args jet.Arguments) reflect.Value {
		args.RequireNumOfArguments("answer", 2, 2)

		var section, question string
		if err := args.ParseInto(&section, &question); err != nil {
			args.Panicf("answer: %v", err)
		}

		v := data.Answer(section, question)
		if v == nil {
			return reflect.ValueOf("")
		}

		return reflect.ValueOf(v)
	}

	funcs["rows"] = func(args jet.Arguments) reflect.Value {
		args.RequireNumOfArguments("rows", 2, 2)

		var section, matrix string
		if err := args.ParseInto(&section, &matrix); err != nil {
			args.Panicf("rows: %v", err)
		}

		return reflect.ValueOf(data.Rows(section, matrix))
	}

	return funcs
}

func (r *Report) renderTemplateBytes(name string, tmpl []byte, data Data) ([]byte, error) {
	var res []byte
	var err error

	switch r.engine {
	case engineJet:
		res, err = r.renderTemplateBytesJet(name, tmpl, data)
	default:
		res, err = r.renderTemplateBytesGoTempl(name, tmpl, data)
	}
	if err != nil {
		return nil, err
	}

	if r.cfg.SkipEmpty && len(bytes.TrimSpace(res)) == 0 {
		return nil, ErrSkippedEmpty
	}

	return res, nil
}

func (r *Report) renderTemplateBytesGoTempl(name string, tmpl []byte, data Data) ([]byte, error) {
	buf := bytes.NewBuffer([]byte{})
	templ := template.New(name).Funcs(r.templateFuncs(data))

	if r.cfg.CustomLeftDelimiter != "" && r.cfg.CustomRightDelimiter != "" {
		templ.Delims(r.cfg.CustomLeftDelimiter, r.cfg.CustomRightDelimiter)
	}

	templ, err := templ.Parse(string(tmpl))
	if err != nil {
		return nil, fmt.Errorf("parsing template %v failed: %w", name, err)
	}

	err = templ.Execute(buf, data)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (r *Report) renderTemplateBytesJet(name string, tmpl []byte, data Data) ([]byte, error) {
	loader := jet.NewInMemLoader()
	loader.Set(name, string(tmpl))

	opts := []jet.Option{jet.WithSafeWriter(nil)}
	if r.cfg.CustomLeftDelimiter != "" && r.cfg.CustomRightDelimiter != "" {
		opts = append(opts, jet.WithDelims(r.cfg.CustomLeftDelimiter, r.cfg.CustomRightDelimiter))
	}

	set := jet.NewSet(loader, opts...)

	for k, fn := range r.jetTemplateFuncs(data) {
		set.AddGlobalFunc(k, fn)
	}

	t, err := set.GetTemplate(name)
	if err != nil {
		return nil, fmt.Errorf("parsing template %v failed: %w", name, err)
	}

	buf := bytes.NewBuffer([]byte{})
	err = t.Execute(buf, nil, data)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (r *Report) postFile(ctx context.Context, f string) error {
	for _, p := range r.cfg.Post {
		for g, v := range p {
			matched, err := filepath.Match(g, filepath.Base(f))
			if err != nil {
				return err
			}

			if !matched {
				continue
			}

			parts, err := shellquote.Split(v)
			if err != nil {
				return err
			}
			if len(parts) == 0 {
				return fmt.Errorf("empty post processing command for %s", g)
			}

			cmd := parts[0]
			var args []string
			hasPlaceholder := false
			for _, p := range parts[1:] {
				if strings.Contains(p, "{}") {
					args = append(args, strings.ReplaceAll(p, "{}", f))
					hasPlaceholder = true
				} else {
					args = append(args, p)
				}
			}

			if !hasPlaceholder {
				args = append(args, f)
			}

			if r.log != nil {
				r.log.Infof("Post processing using: %s %s", cmd, strings.Join(args, " "))
			}

			out, err := exec.CommandContext(ctx, cmd, args...).CombinedOutput()
			if err != nil {
				return fmt.Errorf("failed to post process %s\nerror: %w\noutput: %q", f, err, out)
			}
		}
	}

	return nil
}
