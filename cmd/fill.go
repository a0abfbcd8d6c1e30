// Copyright (c) 2026, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/choria-io/fisk"
	"github.com/choria-io/formstate/answers"
	"github.com/choria-io/formstate/api"
	"github.com/choria-io/formstate/forms"
)

var (
	fillForm       string
	fillRemote     bool
	fillAnswers    string
	fillSubmission string
	fillOutput     string
	fillSubmit     bool

	submitFormID     string
	submitAnswers    string
	submitSubmission string
	submitForce      bool
)

func configureFillCommand(app *fisk.Application) {
	fill := app.Command("fill", "Fills a form interactively").Action(fillAction)
	fill.HelpLong(`
Asks every visible field of the form in order, select options and field
visibility follow earlier answers as they are given.

The form is read from a YAML or JSON file, or fetched from the API with
--remote. Previously saved answers can be resumed from a file or a stored
submission.
`)
	fill.Arg("form", "The form file, or form id with --remote").Required().StringVar(&fillForm)
	fill.Flag("remote", "Fetch the form from the API").BoolVar(&fillRemote)
	fill.Flag("answers", "Resume from answers saved in a JSON file").PlaceHolder("FILE").ExistingFileVar(&fillAnswers)
	fill.Flag("submission", "Resume from a stored submission").PlaceHolder("ID").StringVar(&fillSubmission)
	fill.Flag("output", "Write the answers to a JSON file").PlaceHolder("FILE").StringVar(&fillOutput)
	fill.Flag("submit", "Store the answers as a submission").BoolVar(&fillSubmit)
}

func configureSubmitCommand(app *fisk.Application) {
	submit := app.Command("submit", "Stores saved answers as a submission").Action(submitAction)
	submit.Arg("form", "The form id").Required().StringVar(&submitFormID)
	submit.Arg("answers", "JSON file holding the answers").Required().ExistingFileVar(&submitAnswers)
	submit.Flag("submission", "Update an existing submission").PlaceHolder("ID").StringVar(&submitSubmission)
	submit.Flag("force", "Submit answers that do not validate").BoolVar(&submitForce)
}

func loadForm(ctx context.Context, client *api.Client) (*forms.Form, error) {
	if !fillRemote {
		return forms.LoadFile(fillForm)
	}

	return client.FetchForm(ctx, fillForm)
}

func loadAnswers(ctx context.Context, client *api.Client) ([]answers.Section, error) {
	switch {
	case fillAnswers != "" && fillSubmission != "":
		return nil, fmt.Errorf("--answers and --submission are mutually exclusive")

	case fillAnswers != "":
		return readSections(fillAnswers)

	case fillSubmission != "":
		if !fillRemote {
			return nil, fmt.Errorf("--submission requires --remote")
		}

		sub, err := client.FetchSubmission(ctx, fillForm, fillSubmission)
		if err != nil {
			return nil, err
		}

		return sub.Sections, nil
	}

	return nil, nil
}

func fillAction(_ *fisk.ParseContext) error {
	err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if fillSubmit && !fillRemote {
		return fmt.Errorf("--submit requires --remote")
	}

	ctx, cancel := interruptContext()
	defer cancel()

	var client *api.Client
	if fillRemote || fillSubmit || cfg.APIURL != "" {
		client, err = apiClient()
		if err != nil {
			return err
		}
	}

	form, err := loadForm(ctx, client)
	if err != nil {
		return err
	}

	initial, err := loadAnswers(ctx, client)
	if err != nil {
		return err
	}

	opts := append(cfg.SessionOptions(), forms.WithLogger(log), forms.WithAnswers(initial))
	if client != nil {
		uploader, err := uploadClient()
		if err != nil {
			return err
		}
		opts = append(opts, forms.WithUploader(uploader))
	}

	s, err := forms.NewSession(form, opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	log.Debugf("Filling form %s in session %s", form.Name, s.ID())

	fillErr := forms.Fill(ctx, s, forms.WithFillOutput(os.Stdout))
	if errors.Is(fillErr, context.Canceled) {
		if fillOutput != "" {
			log.Infof("Saving incomplete answers to %s", fillOutput)
			return errors.Join(fillErr, writeJSON(fillOutput, s.Submission()))
		}
		return fillErr
	}

	if fillOutput != "" || !fillSubmit {
		err = writeJSON(fillOutput, s.Submission())
		if err != nil {
			return err
		}
	}

	if fillErr != nil {
		return fillErr
	}

	if !fillSubmit {
		return nil
	}

	var sub *api.Submission
	if fillSubmission != "" {
		sub, err = client.UpdateSubmission(ctx, fillForm, fillSubmission, s.Submission())
	} else {
		sub, err = client.Submit(ctx, fillForm, s.Submission())
	}
	if err != nil {
		return err
	}

	fmt.Printf("Stored submission %s\n", sub.ID)

	return nil
}

func submitAction(_ *fisk.ParseContext) error {
	err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := interruptContext()
	defer cancel()

	client, err := apiClient()
	if err != nil {
		return err
	}

	sections, err := readSections(submitAnswers)
	if err != nil {
		return err
	}

	form, err := client.FetchForm(ctx, submitFormID)
	if err != nil {
		return err
	}

	s, err := forms.NewSession(form, append(cfg.SessionOptions(), forms.WithLogger(log), forms.WithAnswers(sections))...)
	if err != nil {
		return err
	}
	defer s.Close()

	err = s.Validate()
	if err != nil {
		if !submitForce {
			return fmt.Errorf("answers do not validate, use --force to submit anyway:\n%w", err)
		}
		log.Warnf("Submitting answers that do not validate: %v", err)
	}

	var sub *api.Submission
	if submitSubmission != "" {
		sub, err = client.UpdateSubmission(ctx, submitFormID, submitSubmission, s.Submission())
	} else {
		sub, err = client.Submit(ctx, submitFormID, s.Submission())
	}
	if err != nil {
		return err
	}

	fmt.Printf("Stored submission %s\n", sub.ID)

	return nil
}
