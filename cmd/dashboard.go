// Copyright (c) 2026, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/choria-io/fisk"
	"github.com/choria-io/formstate/dashboard"
)

var (
	dashStart     string
	dashEnd       string
	dashStatus    string
	dashFormType  string
	dashCategory  string
	dashJobStatus string
	dashList      bool
	dashJSON      bool
	dashCloseID   string
)

func configureDashboardCommand(app *fisk.Application) {
	dash := app.Command("dashboard", "Reports on safety conditions and incidents")

	safety := dash.Command("safety", "Summarizes unsafe conditions and acts").Action(safetyAction)
	addRangeFlags(safety)
	safety.Flag("status", "Limit to conditions with a status").EnumVar(&dashStatus, dashboard.StatusOpen, dashboard.StatusClosed, dashboard.StatusPending)
	safety.Flag("type", "Limit to a form type").EnumVar(&dashFormType, dashboard.UnsafeCondition, dashboard.UnsafeAct)
	safety.Flag("list", "List the matching conditions").BoolVar(&dashList)
	safety.Flag("json", "Produce JSON output").BoolVar(&dashJSON)

	fir := dash.Command("fir", "Summarizes first incident reports").Action(firAction)
	addRangeFlags(fir)
	fir.Flag("category", "Limit to an incidence category").StringVar(&dashCategory)
	fir.Flag("job-status", "Limit to a job status").StringVar(&dashJobStatus)
	fir.Flag("json", "Produce JSON output").BoolVar(&dashJSON)

	closeCmd := dash.Command("close", "Closes an open safety condition").Action(closeAction)
	closeCmd.Arg("id", "The condition to close").Required().StringVar(&dashCloseID)
}

func addRangeFlags(cmd *fisk.CmdClause) {
	cmd.Flag("start", "Only include records from this date").PlaceHolder("YYYY-MM-DD").StringVar(&dashStart)
	cmd.Flag("end", "Only include records up to this date").PlaceHolder("YYYY-MM-DD").StringVar(&dashEnd)
}

func parseRange() (dashboard.Range, error) {
	var r dashboard.Range
	var err error

	if dashStart != "" {
		r.Start, err = time.Parse(dashboard.DateLayout, dashStart)
		if err != nil {
			return r, fmt.Errorf("invalid start date %q", dashStart)
		}
	}

	if dashEnd != "" {
		r.End, err = time.Parse(dashboard.DateLayout, dashEnd)
		if err != nil {
			return r, fmt.Errorf("invalid end date %q", dashEnd)
		}
	}

	return r, nil
}

func dashboardClient() (*dashboard.Client, error) {
	err := setup()
	if err != nil {
		return nil, err
	}

	client, err := apiClient()
	if err != nil {
		return nil, err
	}

	return dashboard.NewClient(client, cfg.OrganizationID)
}

func safetyAction(_ *fisk.ParseContext) error {
	dc, err := dashboardClient()
	if err != nil {
		return err
	}
	defer log.Sync()

	r, err := parseRange()
	if err != nil {
		return err
	}

	ctx, cancel := interruptContext()
	defer cancel()

	conds, err := dc.Conditions(ctx, dashboard.ConditionFilter{Range: r, Status: dashStatus, FormType: dashFormType})
	if err != nil {
		return err
	}

	summary := dashboard.SummarizeSafety(conds)

	if dashJSON {
		return writeJSON("", summary)
	}

	err = dashboard.RenderSafety(os.Stdout, summary)
	if err != nil {
		return err
	}

	if dashList {
		return dashboard.RenderConditions(os.Stdout, conds)
	}

	return nil
}

func firAction(_ *fisk.ParseContext) error {
	dc, err := dashboardClient()
	if err != nil {
		return err
	}
	defer log.Sync()

	r, err := parseRange()
	if err != nil {
		return err
	}

	ctx, cancel := interruptContext()
	defer cancel()

	incidents, err := dc.Incidents(ctx, dashboard.IncidentFilter{Range: r, Category: dashCategory, JobStatus: dashJobStatus})
	if err != nil {
		return err
	}

	summary := dashboard.SummarizeIncidents(incidents)

	if dashJSON {
		return writeJSON("", summary)
	}

	return dashboard.RenderIncidents(os.Stdout, summary)
}

func closeAction(_ *fisk.ParseContext) error {
	dc, err := dashboardClient()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := interruptContext()
	defer cancel()

	cond, err := dc.CloseByID(ctx, dashCloseID)
	if err != nil {
		return err
	}

	fmt.Printf("Closed %s condition %s\n", cond.FormType, cond.ID)

	return nil
}
