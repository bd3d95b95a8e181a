// Package onboarding holds the onboarding form state machine and the server
// action that completes onboarding against the identity provider and store.
package onboarding

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/seguralta/portal/internal/validation"
)

var (
	// ErrSubmitInFlight is returned when a submission is already running.
	ErrSubmitInFlight = errors.New("onboarding: submission already in flight")
	// ErrFormInvalid is returned when Submit is called on an invalid form.
	ErrFormInvalid = errors.New("onboarding: form has invalid or untouched fields")
)

// Field names one form input.
type Field string

const (
	FieldName  Field = "name"
	FieldPhone Field = "phone"
	FieldCPF   Field = "cpf"
)

// Fields lists the form inputs in display order.
var Fields = []Field{FieldName, FieldPhone, FieldCPF}

// ParseField maps a request parameter to a Field.
func ParseField(s string) (Field, bool) {
	for _, f := range Fields {
		if string(f) == strings.ToLower(strings.TrimSpace(s)) {
			return f, true
		}
	}
	return "", false
}

// Values are the raw values of the form.
type Values struct {
	Name  string `json:"name" form:"name"`
	Phone string `json:"phone" form:"phone"`
	CPF   string `json:"cpf" form:"cpf"`
}

// Get returns the value of f.
func (v Values) Get(f Field) string {
	switch f {
	case FieldPhone:
		return v.Phone
	case FieldCPF:
		return v.CPF
	}
	return v.Name
}

func (v *Values) set(f Field, s string) {
	switch f {
	case FieldPhone:
		v.Phone = s
	case FieldCPF:
		v.CPF = s
	default:
		v.Name = s
	}
}

// ValidateField runs the rule for f against value.
func ValidateField(f Field, value string) validation.Result {
	switch f {
	case FieldPhone:
		return validation.ValidatePhone(value)
	case FieldCPF:
		return validation.ValidateCPF(value)
	}
	return validation.ValidateName(value)
}

// sanitizeInput applies the per-keystroke sanitizer: phone and CPF keep
// digits only, truncated; the name is kept as typed.
func sanitizeInput(f Field, raw string) string {
	switch f {
	case FieldPhone:
		return validation.SanitizePhone(raw)
	case FieldCPF:
		return validation.SanitizeCPF(raw)
	}
	return raw
}

// Form tracks values, the touched set, per-field errors and the in-flight
// submission. A field is only validated once it has been touched (blurred).
type Form struct {
	mu          sync.Mutex
	values      Values
	touched     map[Field]bool
	errs        map[Field]string
	submitting  bool
	submitError string
}

func NewForm() *Form {
	return &Form{touched: map[Field]bool{}, errs: map[Field]string{}}
}

// NewFormFrom builds a form with all fields set and touched, as after a full
// HTML form post. Posted phone and CPF are reduced to digits but not
// truncated, so an over-long value fails validation instead of being cut.
func NewFormFrom(v Values) *Form {
	f := NewForm()
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fld := range Fields {
		raw := v.Get(fld)
		if fld != FieldName {
			raw = validation.Digits(raw)
		}
		f.values.set(fld, raw)
		f.touched[fld] = true
	}
	f.recompute()
	return f
}

// recompute must be called with mu held.
func (f *Form) recompute() {
	f.errs = map[Field]string{}
	for fld := range f.touched {
		if r := ValidateField(fld, f.values.Get(fld)); !r.IsValid {
			f.errs[fld] = r.Error
		}
	}
}

// Set updates a field value.
func (f *Form) Set(fld Field, raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values.set(fld, sanitizeInput(fld, raw))
	f.recompute()
}

// Blur marks a field touched.
func (f *Form) Blur(fld Field) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched[fld] = true
	f.recompute()
}

func (f *Form) Values() Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values
}

func (f *Form) Touched(fld Field) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.touched[fld]
}

// Errors returns the errors of touched fields.
func (f *Form) Errors() map[Field]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[Field]string, len(f.errs))
	for k, v := range f.errs {
		out[k] = v
	}
	return out
}

// IsValid reports whether every field is touched and passes validation.
func (f *Form) IsValid() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validLocked()
}

func (f *Form) validLocked() bool {
	return len(f.touched) == len(Fields) && len(f.errs) == 0
}

// IsSubmitting reports whether a submission is in flight.
func (f *Form) IsSubmitting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitting
}

// CanSubmit is false while the form is invalid or a submission is in flight.
func (f *Form) CanSubmit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validLocked() && !f.submitting
}

// SubmitError is the error returned by the last failed submission.
func (f *Form) SubmitError() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitError
}

// Submit runs action with the current values. Concurrent calls while one is
// running fail with ErrSubmitInFlight. A result error is kept for display and
// the form stays editable.
func (f *Form) Submit(ctx context.Context, action func(context.Context, Values) Result) (Result, error) {
	f.mu.Lock()
	if f.submitting {
		f.mu.Unlock()
		return Result{}, ErrSubmitInFlight
	}
	if !f.validLocked() {
		f.mu.Unlock()
		return Result{}, ErrFormInvalid
	}
	f.submitting = true
	f.submitError = ""
	values := f.values
	f.mu.Unlock()

	res := action(ctx, values)

	f.mu.Lock()
	f.submitting = false
	f.submitError = res.Error
	f.mu.Unlock()
	return res, nil
}
