// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package answers

import (
	"reflect"
	"sync"
)

// WatchFunc receives every change applied to a Store
type WatchFunc func(Change)

// Store is the answer document of one form session. It is safe for use from
// multiple goroutines, mutations are serialized and watchers are called after
// the mutation is applied, outside of the store lock.
type Store struct {
	sections []Section
	watchers map[int]WatchFunc
	nextID   int
	mu       sync.RWMutex
}

// New creates an empty Store
func New() *Store {
	return &Store{watchers: map[int]WatchFunc{}}
}

// NewFromSections creates a Store pre-populated with previously saved
// sections, typically a decoded submission. The sections are copied.
func NewFromSections(sections []Section) *Store {
	s := New()

	for _, sect := range sections {
		resps := copyResponses(sect.Responses)
		restoreRows(resps)

		s.sections = append(s.sections, Section{SectionName: sect.SectionName, Responses: resps})
	}

	return s
}

// Watch registers fn to be called on every change, the returned function removes it
func (s *Store) Watch(fn WatchFunc) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

// UpdateField sets the answer of question in section, creating the section
// and response when absent.
//
// When multiple is true and both the current and the new answer are string
// lists the new values are appended to the existing list, values already
// present are not repeated. In every other case the answer is replaced.
func (s *Store) UpdateField(section string, question string, answer any, multiple bool) {
	s.Dispatch(Update{Target: TopLevel{Section: section, Question: question}, Answer: answer, Multiple: multiple})
}

// UpdateMatrixField sets the answer of the child question in the first row of
// the matrix question name, creating the section, row and child as needed.
// Use Dispatch with a Matrix target to address other rows.
func (s *Store) UpdateMatrixField(name string, section string, question string, answer any) {
	s.Dispatch(Update{Target: Matrix{Section: section, Parent: name, Question: question}, Answer: answer})
}

// Dispatch applies u to the document, routing TopLevel targets to the field
// update and Matrix targets to the matrix update
func (s *Store) Dispatch(u Update) {
	if u.Target == nil {
		return
	}

	s.mu.Lock()

	var change Change
	var changed bool

	switch t := u.Target.(type) {
	case TopLevel:
		change, changed = s.updateField(t, u.Answer, u.Multiple)
	case Matrix:
		change, changed = s.updateMatrixField(t, u.Answer)
	}

	var watchers []WatchFunc
	if changed {
		for _, w := range s.watchers {
			watchers = append(watchers, w)
		}
	}

	s.mu.Unlock()

	for _, w := range watchers {
		w(change)
	}
}

func (s *Store) section(name string) (*Section, bool) {
	for i := range s.sections {
		if s.sections[i].SectionName == name {
			return &s.sections[i], false
		}
	}

	s.sections = append(s.sections, Section{SectionName: name})

	return &s.sections[len(s.sections)-1], true
}

func (s *Store) updateField(t TopLevel, answer any, multiple bool) (Change, bool) {
	sect, _ := s.section(t.Section)
	answer = Normalize(answer)

	idx := findResponse(sect.Responses, t.Question)
	if idx == -1 {
		sect.Responses = append(sect.Responses, Response{Question: t.Question, Answer: answer})
		return Change{Target: t, Current: copyAnswer(answer), Created: true}, true
	}

	resp := &sect.Responses[idx]
	prev := resp.Answer

	next := answer
	if multiple {
		next = mergeAnswer(prev, answer)
	}

	if reflect.DeepEqual(prev, next) {
		return Change{}, false
	}

	resp.Answer = next

	return Change{Target: t, Previous: copyAnswer(prev), Current: copyAnswer(next)}, true
}

func (s *Store) updateMatrixField(t Matrix, answer any) (Change, bool) {
	if t.Row < 0 {
		return Change{}, false
	}

	sect, _ := s.section(t.Section)
	answer = Normalize(answer)

	rows := rowIndexes(sect.Responses, t.Parent)
	for len(rows) <= t.Row {
		sect.Responses = append(sect.Responses, Response{Question: t.Parent, Answer: []Response{}})
		rows = append(rows, len(sect.Responses)-1)
	}

	parent := &sect.Responses[rows[t.Row]]
	children, ok := parent.Answer.([]Response)
	if !ok {
		children = []Response{}
	}

	idx := findResponse(children, t.Question)
	if idx == -1 {
		parent.Answer = append(children, Response{Question: t.Question, Answer: answer})
		return Change{Target: t, Current: copyAnswer(answer), Created: true}, true
	}

	prev := children[idx].Answer
	if reflect.DeepEqual(prev, answer) {
		parent.Answer = children
		return Change{}, false
	}

	children[idx].Answer = answer
	parent.Answer = children

	return Change{Target: t, Previous: copyAnswer(prev), Current: copyAnswer(answer)}, true
}

// Answer looks up the answer for t, ok is false when the question is unanswered
// or the path does not exist
func (s *Store) Answer(t Target) (answer any, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch t := t.(type) {
	case TopLevel:
		return s.lookup(t.Section, t.Question)
	case Matrix:
		return s.lookupMatrix(t.Section, t.Parent, t.Row, t.Question)
	default:
		return nil, false
	}
}

// GetAnswer looks up a top level answer
func (s *Store) GetAnswer(section string, question string) (answer any, ok bool) {
	return s.Answer(TopLevel{Section: section, Question: question})
}

// GetMatrixAnswer looks up a child answer in the first row of a matrix question
func (s *Store) GetMatrixAnswer(section string, parent string, question string) (answer any, ok bool) {
	return s.Answer(Matrix{Section: section, Parent: parent, Question: question})
}

func (s *Store) find(section string) *Section {
	for i := range s.sections {
		if s.sections[i].SectionName == section {
			return &s.sections[i]
		}
	}

	return nil
}

func (s *Store) lookup(section string, question string) (any, bool) {
	sect := s.find(section)
	if sect == nil {
		return nil, false
	}

	idx := findResponse(sect.Responses, question)
	if idx == -1 || sect.Responses[idx].Answer == nil {
		return nil, false
	}

	return copyAnswer(sect.Responses[idx].Answer), true
}

func (s *Store) lookupMatrix(section string, parent string, row int, question string) (any, bool) {
	sect := s.find(section)
	if sect == nil {
		return nil, false
	}

	rows := rowIndexes(sect.Responses, parent)
	if row < 0 || row >= len(rows) {
		return nil, false
	}

	children, ok := sect.Responses[rows[row]].Answer.([]Response)
	if !ok {
		return nil, false
	}

	idx := findResponse(children, question)
	if idx == -1 || children[idx].Answer == nil {
		return nil, false
	}

	return copyAnswer(children[idx].Answer), true
}

// Rows reports how many rows the matrix question parent has in section
func (s *Store) Rows(section string, parent string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sect := s.find(section)
	if sect == nil {
		return 0
	}

	return len(rowIndexes(sect.Responses, parent))
}

// Sections returns a copy of the full document in submission order
func (s *Store) Sections() []Section {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]Section, len(s.sections))
	for i, sect := range s.sections {
		res[i] = Section{SectionName: sect.SectionName, Responses: copyResponses(sect.Responses)}
	}

	return res
}

// Document returns the answers as nested maps keyed by section name and
// question. Matrix questions are lists of row maps. The result is a copy
// suitable for expression evaluation.
func (s *Store) Document() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc := make(map[string]any, len(s.sections))
	for _, sect := range s.sections {
		doc[sect.SectionName] = responsesMap(sect.Responses)
	}

	return doc
}

// SectionDocument is the Document view of a single section, empty when the section does not exist
func (s *Store) SectionDocument(section string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sect := s.find(section)
	if sect == nil {
		return map[string]any{}
	}

	return responsesMap(sect.Responses)
}

// RowDocument is the Document view of one matrix row, empty when the row does not exist
func (s *Store) RowDocument(section string, parent string, row int) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sect := s.find(section)
	if sect == nil {
		return map[string]any{}
	}

	rows := rowIndexes(sect.Responses, parent)
	if row < 0 || row >= len(rows) {
		return map[string]any{}
	}

	children, ok := sect.Responses[rows[row]].Answer.([]Response)
	if !ok {
		return map[string]any{}
	}

	return responsesMap(children)
}

func responsesMap(resps []Response) map[string]any {
	res := map[string]any{}
	parents := matrixParents(resps)

	for _, r := range resps {
		children, ok := r.Answer.([]Response)
		if !ok && parents[r.Question] && isEmptyList(r.Answer) {
			children, ok = []Response{}, true
		}
		if !ok {
			res[r.Question] = documentValue(r.Answer)
			continue
		}

		rows, _ := res[r.Question].([]any)
		res[r.Question] = append(rows, responsesMap(children))
	}

	return res
}

func documentValue(v any) any {
	switch val := v.(type) {
	case []string:
		res := make([]any, len(val))
		for i, s := range val {
			res[i] = s
		}
		return res
	default:
		return copyAnswer(v)
	}
}

func findResponse(resps []Response, question string) int {
	for i := range resps {
		if resps[i].Question == question {
			return i
		}
	}

	return -1
}

func rowIndexes(resps []Response, parent string) []int {
	var rows []int
	for i := range resps {
		if resps[i].Question == parent {
			rows = append(rows, i)
		}
	}

	return rows
}

func mergeAnswer(prev any, next any) any {
	cur, ok := prev.([]string)
	if !ok {
		return next
	}

	add, ok := next.([]string)
	if !ok {
		return next
	}

	res := append([]string{}, cur...)
	for _, v := range add {
		found := false
		for _, e := range res {
			if e == v {
				found = true
				break
			}
		}
		if !found {
			res = append(res, v)
		}
	}

	return res
}
