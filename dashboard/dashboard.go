// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package dashboard fetches safety conditions and first incident reports
// and summarizes them for reporting
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"time"
)

// DateLayout is the format of date filters sent to the backend
const DateLayout = "2006-01-02"

const (
	// UnsafeCondition is the form type of unsafe condition reports
	UnsafeCondition = "USC"
	// UnsafeAct is the form type of unsafe act reports
	UnsafeAct = "USA"
)

const (
	StatusOpen    = "open"
	StatusClosed  = "closed"
	StatusPending = "pending"
)

// MajorCategory is the incidence category counted as a major incident
const MajorCategory = "Major B"

const (
	conditionsPath = "v1/safety/safety-condition"
	incidentsPath  = "v1/safety/incidence"
)

// Requester performs JSON requests against the backend, see api.Client
type Requester interface {
	Do(ctx context.Context, method string, path string, query url.Values, body any, out any) error
}

// Client fetches dashboard data
type Client struct {
	api   Requester
	orgID string
}

// NewClient creates a dashboard client for the organization orgID
func NewClient(api Requester, orgID string) (*Client, error) {
	if api == nil {
		return nil, fmt.Errorf("api client is required")
	}
	if orgID == "" {
		return nil, fmt.Errorf("organization id is required")
	}

	return &Client{api: api, orgID: orgID}, nil
}

// Range limits results to records between Start and End, zero values are unbounded
type Range struct {
	Start time.Time
	End   time.Time
}

func (r Range) apply(q url.Values) error {
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return fmt.Errorf("end date %s is before start date %s", r.End.Format(DateLayout), r.Start.Format(DateLayout))
	}

	if !r.Start.IsZero() {
		q.Set("startDate", r.Start.Format(DateLayout))
	}
	if !r.End.IsZero() {
		q.Set("endDate", r.End.Format(DateLayout))
	}

	return nil
}

// ConditionFilter selects safety conditions
type ConditionFilter struct {
	Range
	Status   string
	FormType string
}

// IncidentFilter selects first incident reports
type IncidentFilter struct {
	Range
	Category  string
	JobStatus string
}

// record keeps the complete backend document so updates send back every field
type record map[string]any

func (r record) str(key string) string {
	s, _ := r[key].(string)
	return s
}

func (r record) truthy(key string) bool {
	switch v := r[key].(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0
	default:
		return true
	}
}

// Condition is a reported unsafe condition or unsafe act
type Condition struct {
	ID       string
	FormType string
	Status   string
	Area     string
	Worker   bool
	Staff    bool

	doc record
}

// UnmarshalJSON decodes a condition keeping unknown fields
func (c *Condition) UnmarshalJSON(data []byte) error {
	var doc record
	err := json.Unmarshal(data, &doc)
	if err != nil {
		return err
	}

	*c = Condition{
		ID:       doc.str("_id"),
		FormType: doc.str("formType"),
		Status:   doc.str("status"),
		Area:     doc.str("area"),
		Worker:   doc.truthy("worker"),
		Staff:    doc.truthy("staff"),
		doc:      doc,
	}

	return nil
}

// MarshalJSON encodes the full condition document with the current status
func (c Condition) MarshalJSON() ([]byte, error) {
	doc := maps.Clone(c.doc)
	if doc == nil {
		doc = record{}
	}

	if c.ID != "" {
		doc["_id"] = c.ID
	}
	doc["formType"] = c.FormType
	doc["status"] = c.Status
	if c.Area != "" {
		doc["area"] = c.Area
	}

	return json.Marshal(doc)
}

// Field is the raw value of a field of the condition document
func (c Condition) Field(name string) any {
	return c.doc[name]
}

// Incident is a first incident report
type Incident struct {
	ID                string
	IncidenceCategory string
	JobStatus         string
	Cause             string
	Treatment         string
	PPEStatus         string
	Experience        string
	IPStatus          string

	doc record
}

// UnmarshalJSON decodes an incident keeping unknown fields
func (i *Incident) UnmarshalJSON(data []byte) error {
	var doc record
	err := json.Unmarshal(data, &doc)
	if err != nil {
		return err
	}

	*i = Incident{
		ID:                doc.str("_id"),
		IncidenceCategory: doc.str("incidenceCategory"),
		JobStatus:         doc.str("jobStatus"),
		Cause:             doc.str("cause"),
		Treatment:         doc.str("treatment"),
		PPEStatus:         doc.str("ppeStatus"),
		Experience:        doc.str("experience"),
		IPStatus:          doc.str("ipStatus"),
		doc:               doc,
	}

	return nil
}

// Field is the raw value of a field of the incident document
func (i Incident) Field(name string) any {
	return i.doc[name]
}

// Conditions fetches the safety conditions matching f
func (c *Client) Conditions(ctx context.Context, f ConditionFilter) ([]Condition, error) {
	q := url.Values{"orgId": {c.orgID}}

	err := f.apply(q)
	if err != nil {
		return nil, err
	}
	if f.FormType != "" {
		q.Set("formType", f.FormType)
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}

	var res []Condition
	err = c.api.Do(ctx, http.MethodGet, conditionsPath, q, nil, &res)
	if err != nil {
		return nil, fmt.Errorf("could not fetch safety conditions: %w", err)
	}

	return res, nil
}

// Incidents fetches the first incident reports matching f
func (c *Client) Incidents(ctx context.Context, f IncidentFilter) ([]Incident, error) {
	q := url.Values{"orgId": {c.orgID}}

	err := f.apply(q)
	if err != nil {
		return nil, err
	}
	if f.Category != "" {
		q.Set("incidenceCategory", f.Category)
	}
	if f.JobStatus != "" {
		q.Set("jobStatus", f.JobStatus)
	}

	var res []Incident
	err = c.api.Do(ctx, http.MethodGet, incidentsPath, q, nil, &res)
	if err != nil {
		return nil, fmt.Errorf("could not fetch incidents: %w", err)
	}

	return res, nil
}

// Close marks the condition as closed by storing the full document with the
// closed status
func (c *Client) Close(ctx context.Context, cond Condition) (Condition, error) {
	if cond.ID == "" {
		return Condition{}, fmt.Errorf("condition has no id")
	}

	cond.Status = StatusClosed

	var res Condition
	err := c.api.Do(ctx, http.MethodPut, conditionsPath+"/"+url.PathEscape(cond.ID), nil, cond, &res)
	if err != nil {
		return Condition{}, fmt.Errorf("could not close condition %s: %w", cond.ID, err)
	}

	if res.ID == "" {
		return cond, nil
	}

	return res, nil
}

// CloseByID finds the open or pending condition id and closes it
func (c *Client) CloseByID(ctx context.Context, id string) (Condition, error) {
	all, err := c.Conditions(ctx, ConditionFilter{})
	if err != nil {
		return Condition{}, err
	}

	for _, cond := range all {
		if cond.ID != id {
			continue
		}

		if cond.Status == StatusClosed {
			return cond, fmt.Errorf("condition %s is already closed", id)
		}

		return c.Close(ctx, cond)
	}

	return Condition{}, fmt.Errorf("unknown condition %s", id)
}
