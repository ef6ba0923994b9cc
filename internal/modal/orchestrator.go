// Package modal tracks the single open modal of a resource panel and turns
// validated form input into mutation requests.
package modal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/deliverly/admin-console/internal/apiclient"
	"github.com/deliverly/admin-console/internal/mutation"
)

// Mode identifies what the open modal is for.
type Mode string

const (
	// ModeNone means no modal is open.
	ModeNone Mode = ""
	// ModeView shows an entity read-only. It closes only explicitly.
	ModeView Mode = "view"
	// ModeEdit edits an entity.
	ModeEdit Mode = "edit"
)

var (
	// ErrNoModal is returned when submitting while nothing is open.
	ErrNoModal = errors.New("modal: nothing open")
	// ErrUnknownMode is returned for modes no descriptor handles.
	ErrUnknownMode = errors.New("modal: unknown mode")
	// ErrNotSubmittable is returned when the open modal has no form.
	ErrNotSubmittable = errors.New("modal: mode has no form")
)

// Target is the modal currently shown. Entity is nil for create forms.
type Target[T any] struct {
	Entity *T   `json:"entity,omitempty"`
	Mode   Mode `json:"mode"`
}

// Open reports whether a modal is shown.
func (t Target[T]) Open() bool {
	return t.Mode != ModeNone
}

// Descriptor ties a mode to its form and the mutation it submits.
type Descriptor[T any] struct {
	Mode  Mode
	Title string
	// NeedsEntity rejects Open without an entity.
	NeedsEntity bool
	// NewForm returns a pointer to an empty form struct.
	NewForm func() any
	// Request maps the validated form onto a mutation.
	Request func(entity *T, form any) (mutation.Request, error)
}

func (d Descriptor[T]) submittable() bool {
	return d.NewForm != nil && d.Request != nil
}

// Dispatcher is the part of mutation.Dispatcher the orchestrator needs.
type Dispatcher interface {
	Execute(ctx context.Context, key string, req mutation.Request) (mutation.Result, error)
	Pending(key string) bool
}

// Orchestrator owns one modal family. Opening a target replaces whatever
// is open.
type Orchestrator[T any] struct {
	key         string
	dispatcher  Dispatcher
	validate    *validator.Validate
	logger      *slog.Logger
	descriptors map[Mode]Descriptor[T]

	mu      sync.Mutex
	target  Target[T]
	opened  uint64
	lastErr error
}

// NewOrchestrator builds an orchestrator whose mutations are single-flighted
// under key.
func NewOrchestrator[T any](key string, dispatcher Dispatcher, logger *slog.Logger, descriptors ...Descriptor[T]) *Orchestrator[T] {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator[T]{
		key:         key,
		dispatcher:  dispatcher,
		validate:    NewValidator(),
		logger:      logger,
		descriptors: make(map[Mode]Descriptor[T]),
	}
	o.descriptors[ModeView] = Descriptor[T]{Mode: ModeView, Title: "Details", NeedsEntity: true}
	for _, d := range descriptors {
		o.descriptors[d.Mode] = d
	}
	return o
}

// NewValidator returns a validator reporting fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Key is the single-flight key of this modal family.
func (o *Orchestrator[T]) Key() string {
	return o.key
}

// Modes lists the registered modes.
func (o *Orchestrator[T]) Modes() []Mode {
	modes := make([]Mode, 0, len(o.descriptors))
	for m := range o.descriptors {
		modes = append(modes, m)
	}
	return modes
}

// Descriptor returns the descriptor for mode.
func (o *Orchestrator[T]) Descriptor(mode Mode) (Descriptor[T], bool) {
	d, ok := o.descriptors[mode]
	return d, ok
}

// Open shows mode for entity, replacing any open modal.
func (o *Orchestrator[T]) Open(mode Mode, entity *T) error {
	if mode == ModeNone {
		o.Close()
		return nil
	}
	desc, ok := o.descriptors[mode]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}
	if desc.NeedsEntity && entity == nil {
		return fmt.Errorf("modal: %s requires an entity", mode)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.target = Target[T]{Entity: entity, Mode: mode}
	o.opened++
	o.lastErr = nil
	return nil
}

// Close hides the modal.
func (o *Orchestrator[T]) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.target = Target[T]{}
	o.opened++
	o.lastErr = nil
}

// Target returns the open modal.
func (o *Orchestrator[T]) Target() Target[T] {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.target
}

// LastError returns the error of the last failed submit of the open modal.
func (o *Orchestrator[T]) LastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Pending reports whether a submit is in flight; the submit control stays
// disabled meanwhile.
func (o *Orchestrator[T]) Pending() bool {
	return o.dispatcher.Pending(o.key)
}

// Submit decodes raw into the open modal's form, validates it locally and
// dispatches the mutation. Local validation failures never reach the
// dispatcher. On success action modals close; on failure the modal stays
// open with the error recorded.
func (o *Orchestrator[T]) Submit(ctx context.Context, raw []byte) (mutation.Result, error) {
	o.mu.Lock()
	target, opened := o.target, o.opened
	o.mu.Unlock()
	if !target.Open() {
		return mutation.Result{}, ErrNoModal
	}
	desc := o.descriptors[target.Mode]
	if !desc.submittable() {
		return mutation.Result{}, fmt.Errorf("%w: %s", ErrNotSubmittable, target.Mode)
	}

	form := desc.NewForm()
	if err := decodeForm(raw, form); err != nil {
		return mutation.Result{}, o.recordFailure(opened, err)
	}
	if err := o.Validate(form); err != nil {
		return mutation.Result{}, o.recordFailure(opened, err)
	}
	req, err := desc.Request(target.Entity, form)
	if err != nil {
		return mutation.Result{}, o.recordFailure(opened, err)
	}

	result, err := o.dispatcher.Execute(ctx, o.key, req)
	if err != nil {
		if errors.Is(err, mutation.ErrInFlight) {
			return mutation.Result{}, err
		}
		return mutation.Result{}, o.recordFailure(opened, err)
	}

	o.mu.Lock()
	if o.opened == opened && o.target.Mode != ModeView {
		o.target = Target[T]{}
		o.opened++
		o.lastErr = nil
	}
	o.mu.Unlock()
	return result, nil
}

// Validate runs the struct rules of form and converts failures into a
// validation error keyed by JSON field name.
func (o *Orchestrator[T]) Validate(form any) error {
	err := o.validate.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apiclient.NewValidationError(err.Error(), nil)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return apiclient.NewValidationError("please correct the highlighted fields", fields)
}

func (o *Orchestrator[T]) recordFailure(opened uint64, err error) error {
	o.mu.Lock()
	if o.opened == opened {
		o.lastErr = err
	}
	o.mu.Unlock()
	if apiclient.KindOf(err) != apiclient.KindValidation {
		o.logger.Debug("modal submit failed", slog.String("modal", o.key), slog.Any("error", err))
	}
	return err
}

func decodeForm(raw []byte, form any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(form); err != nil {
		return apiclient.NewValidationError("invalid form: "+err.Error(), nil)
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.String {
			return "must be at least " + fe.Param() + " characters"
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "email":
		return "must be a valid email"
	default:
		return "is invalid"
	}
}
