// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package forms

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/choria-io/formstate/answers"
	"github.com/choria-io/formstate/internal/validator"
	"github.com/choria-io/formstate/upload"
	"github.com/google/uuid"
)

// LateWrites decides what happens to uploads that finish after their field was unmounted
type LateWrites string

const (
	// DiscardLateWrites drops the references and cancels outstanding uploads
	DiscardLateWrites LateWrites = "discard"
	// ApplyLateWrites lets uploads finish and commits their references
	ApplyLateWrites LateWrites = "apply"
)

const (
	// DefaultIdentitySection is the section whose image fields hold a single identity photo
	DefaultIdentitySection = "Registration"
	// DefaultIdentityMaxImages is the image limit in the identity section
	DefaultIdentityMaxImages = 1
	// DefaultMaxImages is the image limit in all other sections
	DefaultMaxImages = 4
	// DefaultMaxImageBytes is the largest compressed image accepted
	DefaultMaxImageBytes = 2048 * 2048
	// DefaultUploadConcurrency is how many images of a batch upload at the same time
	DefaultUploadConcurrency = 2
)

// Trigger re-runs validation for a field key in the host, typically a UI
type Trigger interface {
	Trigger(key string)
}

// TriggerFunc adapts a function to the Trigger interface
type TriggerFunc func(key string)

// Trigger calls fn
func (fn TriggerFunc) Trigger(key string) { fn(key) }

// Logger is the logging interface used by sessions
type Logger interface {
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
}

type discardLogger struct{}

func (discardLogger) Debugf(string, ...any) {}
func (discardLogger) Infof(string, ...any)  {}
func (discardLogger) Warnf(string, ...any)  {}

// Option configures a Session
type Option func(*Session) error

// WithAnswers starts the session from previously saved sections
func WithAnswers(sections []answers.Section) Option {
	return func(s *Session) error {
		s.initial = sections
		return nil
	}
}

// WithUploader sets the collaborator image fields upload through
func WithUploader(u ImageUploader) Option {
	return func(s *Session) error {
		s.uploader = u
		return nil
	}
}

// WithCompressor compresses images before upload
func WithCompressor(c Compressor) Option {
	return func(s *Session) error {
		s.compressor = c
		return nil
	}
}

// WithTrigger receives the key of every field revalidated after a change
func WithTrigger(t Trigger) Option {
	return func(s *Session) error {
		s.trigger = t
		return nil
	}
}

// WithLogger logs session activity to log
func WithLogger(log Logger) Option {
	return func(s *Session) error {
		if log != nil {
			s.log = log
		}
		return nil
	}
}

// WithIdentitySection sets the section image fields of which upload identity photos
func WithIdentitySection(section string, maxImages int) Option {
	return func(s *Session) error {
		if maxImages < 1 {
			return fmt.Errorf("identity image limit must be at least 1")
		}
		s.identitySection = section
		s.identityMaxImages = maxImages
		return nil
	}
}

// WithMaxImages sets the image limit outside the identity section
func WithMaxImages(n int) Option {
	return func(s *Session) error {
		if n < 1 {
			return fmt.Errorf("image limit must be at least 1")
		}
		s.maxImages = n
		return nil
	}
}

// WithMaxImageBytes sets the largest compressed image accepted
func WithMaxImageBytes(n int64) Option {
	return func(s *Session) error {
		if n < 1 {
			return fmt.Errorf("image size limit must be positive")
		}
		s.maxImageBytes = n
		return nil
	}
}

// WithLateWrites decides what happens to uploads finishing after unmount
func WithLateWrites(lw LateWrites) Option {
	return func(s *Session) error {
		if !isOneOf(string(lw), string(DiscardLateWrites), string(ApplyLateWrites)) {
			return fmt.Errorf("invalid late writes mode %q", lw)
		}
		s.lateWrites = lw
		return nil
	}
}

// WithUploadConcurrency limits concurrent uploads within a batch
func WithUploadConcurrency(n int) Option {
	return func(s *Session) error {
		if n < 1 {
			return fmt.Errorf("upload concurrency must be at least 1")
		}
		s.uploadConcurrency = n
		return nil
	}
}

// Session owns the answer store of one form filling session and the
// controllers mounted against it
type Session struct {
	id   string
	form Form

	store      *answers.Store
	initial    []answers.Section
	uploader   ImageUploader
	compressor Compressor
	trigger    Trigger
	log        Logger

	identitySection   string
	identityMaxImages int
	maxImages         int
	maxImageBytes     int64
	lateWrites        LateWrites
	uploadConcurrency int

	// fields watching a question keyed by depKey
	deps    map[string][]Field
	mounted map[string]Controller
	errors  map[string]error

	ctx     context.Context
	cancel  context.CancelFunc
	unwatch func()
	mu      sync.Mutex
}

// NewSession starts a session for form
func NewSession(form *Form, opts ...Option) (*Session, error) {
	if form == nil {
		return nil, fmt.Errorf("form is required")
	}

	err := form.Validate()
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:                uuid.NewString(),
		form:              *form,
		log:               discardLogger{},
		identitySection:   DefaultIdentitySection,
		identityMaxImages: DefaultIdentityMaxImages,
		maxImages:         DefaultMaxImages,
		maxImageBytes:     DefaultMaxImageBytes,
		lateWrites:        DiscardLateWrites,
		uploadConcurrency: DefaultUploadConcurrency,
		deps:              map[string][]Field{},
		mounted:           map[string]Controller{},
		errors:            map[string]error{},
	}

	for _, opt := range opts {
		err = opt(s)
		if err != nil {
			return nil, err
		}
	}

	s.store = answers.NewFromSections(s.initial)
	s.initial = nil
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.indexDependencies()
	s.unwatch = s.store.Watch(s.changed)

	s.log.Debugf("Started session %s for form %q", s.id, s.form.Name)

	return s, nil
}

// ID is the unique id of the session
func (s *Session) ID() string { return s.id }

// Form is the form being filled
func (s *Session) Form() Form { return s.form }

// Store is the answer store of the session
func (s *Session) Store() *answers.Store { return s.store }

// Submission is a copy of the answers in the shape posted to the backend
func (s *Session) Submission() []answers.Section { return s.store.Sections() }

// Mount creates, or returns the already mounted, controller of a top level field
func (s *Session) Mount(section string, label string) (Controller, error) {
	f, err := s.lookupField(section, label)
	if err != nil {
		return nil, err
	}

	return s.mount(f, SectionScope(section))
}

// Unmount detaches c, in flight uploads of image controllers follow the late writes mode
func (s *Session) Unmount(c Controller) {
	s.mu.Lock()
	id := mountID(c.Scope(), c.Field().Label)
	if s.mounted[id] == c {
		delete(s.mounted, id)
	}
	s.mu.Unlock()

	c.detach()
	s.log.Debugf("Unmounted %s", id)
}

// Close ends the session, every controller is detached
func (s *Session) Close() {
	s.mu.Lock()
	s.mounted = map[string]Controller{}
	s.mu.Unlock()

	s.unwatch()
	s.cancel()
}

func (s *Session) mount(f Field, scope Scope) (Controller, error) {
	if s.ctx.Err() != nil {
		return nil, fmt.Errorf("session %s is closed", s.id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := mountID(scope, f.Label)
	if c, ok := s.mounted[id]; ok {
		return c, nil
	}

	c, err := newController(s, f, scope)
	if err != nil {
		return nil, err
	}

	s.mounted[id] = c
	s.log.Debugf("Mounted %s as %s", id, f.Type())

	return c, nil
}

// Visible reports if the top level field is currently shown
func (s *Session) Visible(section string, label string) bool {
	f, err := s.lookupField(section, label)
	if err != nil {
		return false
	}

	return s.visible(f, SectionScope(section))
}

// Options is the current option domain of a top level select field
func (s *Session) Options(section string, label string) ([]string, error) {
	f, err := s.lookupField(section, label)
	if err != nil {
		return nil, err
	}

	return Options(f, s.store, SectionScope(section)), nil
}

// Errors is a copy of the latest validation result per field, keyed by section and field key
func (s *Session) Errors() map[string]error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return maps.Clone(s.errors)
}

// Validate checks every field of the form, records the results and returns them joined
func (s *Session) Validate() error {
	var errs []error

	for _, sect := range s.form.Sections {
		scope := SectionScope(sect.SectionName)
		for _, f := range sect.Fields {
			err := s.record(scope, f)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", sect.SectionName, err))
			}
		}
	}

	return errors.Join(errs...)
}

func (s *Session) lookupField(section string, label string) (Field, error) {
	sect, ok := s.form.Section(section)
	if !ok {
		return Field{}, fmt.Errorf("unknown section %q", section)
	}

	f, ok := sect.Field(label)
	if !ok {
		return Field{}, fmt.Errorf("%s: unknown field %q", section, label)
	}

	return f, nil
}

func (s *Session) commit(t answers.Target, answer any, multiple bool) {
	switch t := t.(type) {
	case answers.TopLevel:
		s.store.UpdateField(t.Section, t.Question, answer, multiple)
	case answers.Matrix:
		if t.Row == 0 {
			s.store.UpdateMatrixField(t.Parent, t.Section, t.Question, answer)
			return
		}
		s.store.Dispatch(answers.Update{Target: t, Answer: answer})
	}
}

func (s *Session) visible(f Field, scope Scope) bool {
	ok, err := Visible(f, s.store, scope)
	if err != nil {
		s.log.Warnf("Could not evaluate conditional for %s: %v", scope.Key(f.Label), err)
		return false
	}

	return ok
}

func (s *Session) validateField(f Field, scope Scope) error {
	if !s.visible(f, scope) {
		return nil
	}

	if f.Type() == MatrixResponse {
		return s.validateMatrix(f, scope)
	}

	val, ok := s.store.Answer(scope.Target(f.Label))
	if !ok || validator.IsEmpty(val) {
		if f.IsRequired {
			return requiredError(f)
		}
		return nil
	}

	err := checkAnswer(f, val, Options(f, s.store, scope), s.maxImagesFor(f, scope))
	if err != nil {
		return err
	}

	if f.Validation == "" {
		return nil
	}

	pass, err := validator.ValidateValue(val, expressionEnv(s.store, scope), f.Validation)
	if err != nil {
		return fmt.Errorf("%s: %w", f.Label, err)
	}

	if !pass {
		if f.ErrorMessage != "" {
			return fmt.Errorf("%s: %w: %s", f.Label, ErrValidationFailed, f.ErrorMessage)
		}
		return fmt.Errorf("%s: %w", f.Label, ErrValidationFailed)
	}

	return nil
}

func (s *Session) record(scope Scope, f Field) error {
	err := s.validateField(f, scope)

	s.mu.Lock()
	id := mountID(scope, f.Label)
	if err == nil {
		delete(s.errors, id)
	} else {
		s.errors[id] = err
	}
	s.mu.Unlock()

	return err
}

// changed revalidates the written field and the mounted fields watching it
func (s *Session) changed(c answers.Change) {
	scope := SectionScope(c.Target.SectionName())
	if t, ok := c.Target.(answers.Matrix); ok {
		scope = scope.RowScope(t.Parent, t.Row)
	}

	type pending struct {
		field Field
		scope Scope
	}

	var todo []pending
	seen := map[string]bool{}
	add := func(f Field, scope Scope) {
		id := mountID(scope, f.Label)
		if !seen[id] {
			seen[id] = true
			todo = append(todo, pending{field: f, scope: scope})
		}
	}

	if f, ok := s.fieldAt(scope, c.Target.QuestionName()); ok {
		add(f, scope)
	}

	s.mu.Lock()
	for _, f := range s.deps[depKey(scope.Section, scope.Parent, c.Target.QuestionName())] {
		if _, ok := s.mounted[mountID(scope, f.Label)]; ok {
			add(f, scope)
		}
	}
	for _, ctl := range s.mounted {
		if ctl.Field().Conditional != "" {
			add(ctl.Field(), ctl.Scope())
		}
	}
	s.mu.Unlock()

	for _, p := range todo {
		s.record(p.scope, p.field)
		if s.trigger != nil {
			s.trigger.Trigger(p.scope.Key(p.field.Label))
		}
	}
}

func (s *Session) fieldAt(scope Scope, label string) (Field, bool) {
	sect, ok := s.form.Section(scope.Section)
	if !ok {
		return Field{}, false
	}

	if !scope.InMatrix() {
		return sect.Field(label)
	}

	parent, ok := sect.Field(scope.Parent)
	if !ok {
		return Field{}, false
	}

	return parent.Child(label)
}

func (s *Session) indexDependencies() {
	var index func(section string, parent string, fields []Field)

	index = func(section string, parent string, fields []Field) {
		for _, f := range fields {
			for _, rule := range f.ConditionalOptions {
				for _, check := range rule.Check {
					k := depKey(section, parent, check.Label)
					s.deps[k] = append(s.deps[k], f)
				}
			}

			if f.Type() == MatrixResponse {
				index(section, f.Label, f.Fields)
			}
		}
	}

	for _, sect := range s.form.Sections {
		index(sect.SectionName, "", sect.Fields)
	}
}

func (s *Session) isIdentity(scope Scope) bool {
	return scope.Section == s.identitySection
}

func (s *Session) uploadKind(scope Scope) upload.Kind {
	if s.isIdentity(scope) {
		return upload.PersonKind
	}

	return upload.SafetyKind
}

func (s *Session) maxImagesFor(f Field, scope Scope) int {
	switch {
	case f.MaxImages > 0:
		return f.MaxImages
	case s.isIdentity(scope):
		return s.identityMaxImages
	default:
		return s.maxImages
	}
}

func mountID(scope Scope, label string) string {
	return scope.Section + "/" + scope.Key(label)
}

func depKey(section string, parent string, label string) string {
	return section + "\x00" + parent + "\x00" + label
}
