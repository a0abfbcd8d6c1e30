// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package dashboard

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.SetTitle(title)

	return t
}

func writeTable(w io.Writer, t table.Writer) error {
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func distribution(w io.Writer, title string, counts []Count) error {
	t := newTable(title)
	t.AppendHeader(table.Row{"", "Count", "%"})
	for _, c := range counts {
		t.AppendRow(table.Row{c.Label, c.Count, c.Percent})
	}

	return writeTable(w, t)
}

// RenderSafety writes the safety summary as tables
func RenderSafety(w io.Writer, s SafetySummary) error {
	t := newTable(fmt.Sprintf("Safety Conditions (%d)", s.Total))
	t.AppendHeader(table.Row{"Type", "Open", "Closed", "Pending", "Workers", "Staff"})
	for _, tc := range s.Types {
		t.AppendRow(table.Row{tc.FormType, tc.Open, tc.Closed, tc.Pending, tc.Workers, tc.Staff})
	}

	err := writeTable(w, t)
	if err != nil {
		return err
	}

	if len(s.Areas) == 0 {
		return nil
	}

	return distribution(w, "Areas", s.Areas)
}

// RenderIncidents writes the incident summary as tables
func RenderIncidents(w io.Writer, s IncidentSummary) error {
	t := newTable("First Incident Reports")
	t.AppendRow(table.Row{"Total Incidents", s.Total})
	t.AppendRow(table.Row{"Major Incidents", s.Major})

	err := writeTable(w, t)
	if err != nil {
		return err
	}

	if s.Total == 0 {
		return nil
	}

	for _, d := range []struct {
		title  string
		counts []Count
	}{
		{"Cause", s.Cause},
		{"Treatment", s.Treatment},
		{"PPE Status", s.PPE},
		{"Experience", s.Experience},
		{"IP Status", s.IPStatus},
	} {
		err = distribution(w, d.title, d.counts)
		if err != nil {
			return err
		}
	}

	return nil
}

// RenderConditions lists conditions with their id, type, status and area
func RenderConditions(w io.Writer, conds []Condition) error {
	t := newTable(fmt.Sprintf("Conditions (%d)", len(conds)))
	t.AppendHeader(table.Row{"ID", "Type", "Status", "Area"})
	for _, c := range conds {
		t.AppendRow(table.Row{c.ID, c.FormType, c.Status, c.Area})
	}

	return writeTable(w, t)
}
