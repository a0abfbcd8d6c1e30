// Copyright (c) 2026, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/choria-io/fisk"
	"github.com/choria-io/formstate/report"
)

var (
	reportTemplate   string
	reportTarget     string
	reportAnswers    string
	reportFormName   string
	reportEngine     string
	reportLeft       string
	reportRight      string
	reportOverwrite  bool
	reportSkipEmpty  bool
	reportPost       map[string]string
	reportSubmission string
)

func configureReportCommand(app *fisk.Application) {
	reportPost = map[string]string{}

	rep := app.Command("report", "Renders answers through a template").Action(reportAction)
	rep.HelpLong(`
Templates are Go or Jet templates, the answers are available through the
answer and rows functions:

   {{ answer "Details" "Name" }}
   {{ range rows "Details" "Witnesses" }}{{ .Name }}{{ end }}

Sprig functions are available in Go templates.
`)
	rep.Arg("template", "The template file to render").Required().ExistingFileVar(&reportTemplate)
	rep.Arg("target", "The report file to write").Required().StringVar(&reportTarget)
	rep.Arg("answers", "JSON file holding the answers").Required().ExistingFileVar(&reportAnswers)
	rep.Flag("form", "The form name passed to the template").StringVar(&reportFormName)
	rep.Flag("submission", "The submission id passed to the template").PlaceHolder("ID").StringVar(&reportSubmission)
	rep.Flag("engine", "The template engine to use (jet, go)").Default("go").EnumVar(&reportEngine, "jet", "go")
	rep.Flag("left", "Left delimiter").Default("{{").StringVar(&reportLeft)
	rep.Flag("right", "Right delimiter").Default("}}").StringVar(&reportRight)
	rep.Flag("overwrite", "Replace an existing report").BoolVar(&reportOverwrite)
	rep.Flag("skip-empty", "Do not write empty reports").BoolVar(&reportSkipEmpty)
	rep.Flag("post", "Post processing steps").PlaceHolder("PATTERN=TOOL").StringMapVar(&reportPost)
}

func reportAction(_ *fisk.ParseContext) error {
	err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	sections, err := readSections(reportAnswers)
	if err != nil {
		return err
	}

	rcfg := report.Config{
		Template:             reportTemplate,
		Target:               reportTarget,
		Overwrite:            reportOverwrite,
		SkipEmpty:            reportSkipEmpty,
		CustomLeftDelimiter:  reportLeft,
		CustomRightDelimiter: reportRight,
	}

	for k, v := range reportPost {
		rcfg.Post = append(rcfg.Post, map[string]string{k: v})
	}

	var r *report.Report
	if reportEngine == "jet" {
		r, err = report.NewJet(rcfg, nil)
	} else {
		r, err = report.New(rcfg, nil)
	}
	if err != nil {
		return err
	}
	r.Logger(log)

	ctx, cancel := interruptContext()
	defer cancel()

	out, err := r.Render(ctx, report.NewData(reportFormName, reportSubmission, sections))
	if err != nil {
		return err
	}

	if out != "" {
		fmt.Printf("Rendered %s\n", out)
	}

	return nil
}
