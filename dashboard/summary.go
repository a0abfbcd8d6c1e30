// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package dashboard

import "math"

// Unknown labels records without a value for a summarized field
const Unknown = "Unknown"

// Count is the number of records sharing Label
type Count struct {
	Label string
	Count int
	// Percent is Count as a rounded percentage of all counted records
	Percent int
}

// StatusCounts counts conditions of one form type by status
type StatusCounts struct {
	FormType string
	Open     int
	Closed   int
	Pending  int
	Workers  int
	Staff    int
}

// SafetySummary summarizes safety conditions
type SafetySummary struct {
	Total int
	// Types holds counts for unsafe conditions then unsafe acts
	Types []StatusCounts
	// Areas distributes conditions with an area, in order of first appearance
	Areas []Count
}

// IncidentSummary summarizes first incident reports, distributions list
// labels in order of first appearance
type IncidentSummary struct {
	Total      int
	Major      int
	Cause      []Count
	Treatment  []Count
	PPE        []Count
	Experience []Count
	IPStatus   []Count
}

// SummarizeSafety counts conditions per form type, status and area
func SummarizeSafety(conds []Condition) SafetySummary {
	res := SafetySummary{
		Total: len(conds),
		Types: []StatusCounts{{FormType: UnsafeCondition}, {FormType: UnsafeAct}},
	}

	areas := newCounter()

	for _, c := range conds {
		if c.Area != "" {
			areas.add(c.Area)
		}

		var tc *StatusCounts
		for i := range res.Types {
			if res.Types[i].FormType == c.FormType {
				tc = &res.Types[i]
			}
		}
		if tc == nil {
			continue
		}

		switch c.Status {
		case StatusOpen:
			tc.Open++
		case StatusClosed:
			tc.Closed++
		case StatusPending:
			tc.Pending++
		}

		if c.Worker {
			tc.Workers++
		}
		if c.Staff {
			tc.Staff++
		}
	}

	res.Areas = areas.counts()

	return res
}

// SummarizeIncidents counts incidents, major incidents and the distribution
// of causes, treatments, PPE status, experience and IP status
func SummarizeIncidents(incidents []Incident) IncidentSummary {
	res := IncidentSummary{Total: len(incidents)}

	cause := newCounter()
	treatment := newCounter()
	ppe := newCounter()
	experience := newCounter()
	ip := newCounter()

	for _, i := range incidents {
		if i.IncidenceCategory == MajorCategory {
			res.Major++
		}

		cause.add(orUnknown(i.Cause))
		treatment.add(orUnknown(i.Treatment))
		ppe.add(orUnknown(i.PPEStatus))
		experience.add(orUnknown(i.Experience))
		ip.add(orUnknown(i.IPStatus))
	}

	res.Cause = cause.counts()
	res.Treatment = treatment.counts()
	res.PPE = ppe.counts()
	res.Experience = experience.counts()
	res.IPStatus = ip.counts()

	return res
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}

	return s
}

// counter counts labels keeping the order they were first seen in
type counter struct {
	order []string
	seen  map[string]int
	total int
}

func newCounter() *counter {
	return &counter{seen: map[string]int{}}
}

func (c *counter) add(label string) {
	if _, ok := c.seen[label]; !ok {
		c.order = append(c.order, label)
	}
	c.seen[label]++
	c.total++
}

func (c *counter) counts() []Count {
	res := make([]Count, 0, len(c.order))
	for _, l := range c.order {
		n := c.seen[l]
		res = append(res, Count{Label: l, Count: n, Percent: int(math.Round(float64(n) / float64(c.total) * 100))})
	}

	return res
}
