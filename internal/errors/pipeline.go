package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType classifies pipeline failures
type ErrorType string

const (
	ErrorTypeConfiguration   ErrorType = "configuration"
	ErrorTypeDataAlignment   ErrorType = "data_alignment"
	ErrorTypeCacheCorruption ErrorType = "cache_corruption"
	ErrorTypeEmptySample     ErrorType = "empty_sample"
	ErrorTypeExecution       ErrorType = "execution"
)

// PipelineError carries the failure class plus the parameters that produced it
type PipelineError struct {
	Type    ErrorType              `json:"type"`
	Stage   string                 `json:"stage,omitempty"`
	Code    string                 `json:"code,omitempty"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e == nil {
		return "unknown pipeline error"
	}
	msg := fmt.Sprintf("[%s] %s", e.Type, e.Message)
	if e.Stage != "" {
		msg = fmt.Sprintf("[%s] %s: %s", e.Type, e.Stage, e.Message)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches on error type, and on code when the target carries one
func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	if !ok || e == nil {
		return false
	}
	if t.Type != e.Type {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// WithStage returns a copy annotated with the failing stage
func (e *PipelineError) WithStage(stage string) *PipelineError {
	if e == nil {
		return nil
	}
	c := *e
	if c.Stage == "" {
		c.Stage = stage
	}
	return &c
}

// With returns a copy with an extra context entry
func (e *PipelineError) With(key string, value interface{}) *PipelineError {
	c := *e
	c.Context = make(map[string]interface{}, len(e.Context)+1)
	for k, v := range e.Context {
		c.Context[k] = v
	}
	c.Context[key] = value
	return &c
}

// Sentinels for errors.Is
var (
	ErrConfiguration   = &PipelineError{Type: ErrorTypeConfiguration}
	ErrDataAlignment   = &PipelineError{Type: ErrorTypeDataAlignment}
	ErrCacheCorruption = &PipelineError{Type: ErrorTypeCacheCorruption}
	ErrEmptySample     = &PipelineError{Type: ErrorTypeEmptySample}

	ErrUnknownMapping    = &PipelineError{Type: ErrorTypeConfiguration, Code: "unknown_mapping"}
	ErrInsufficientLag   = &PipelineError{Type: ErrorTypeConfiguration, Code: "insufficient_lag"}
	ErrUnsupportedPolicy = &PipelineError{Type: ErrorTypeConfiguration, Code: "unsupported_policy"}
)

// NewConfigurationError reports an invalid parameter
func NewConfigurationError(message string, context map[string]interface{}) *PipelineError {
	return &PipelineError{Type: ErrorTypeConfiguration, Message: message, Context: context}
}

// NewUnknownMappingError reports a release mapping that is not registered
func NewUnknownMappingError(name string, known []string) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeConfiguration,
		Code:    "unknown_mapping",
		Message: fmt.Sprintf("unknown release mapping %q", name),
		Context: map[string]interface{}{"mapping": name, "known": known},
	}
}

// NewInsufficientLagError reports a lag depth too short for the forecasting model
func NewInsufficientLagError(lags, minimum int) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeConfiguration,
		Code:    "insufficient_lag",
		Message: fmt.Sprintf("lag depth %d is below the minimum of %d", lags, minimum),
		Context: map[string]interface{}{"lags": lags, "minimum": minimum},
	}
}

// NewUnsupportedPolicyError reports an unknown policy name such as a selection strategy
func NewUnsupportedPolicyError(kind, name string) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeConfiguration,
		Code:    "unsupported_policy",
		Message: fmt.Sprintf("unsupported %s policy %q", kind, name),
		Context: map[string]interface{}{"kind": kind, "policy": name},
	}
}

// NewDataAlignmentError reports a structural problem in a panel or calendar
func NewDataAlignmentError(message string, date time.Time, column string) *PipelineError {
	ctx := map[string]interface{}{}
	if !date.IsZero() {
		ctx["date"] = date.Format("2006-01-02")
	}
	if column != "" {
		ctx["column"] = column
	}
	return &PipelineError{Type: ErrorTypeDataAlignment, Message: message, Context: ctx}
}

// NewCacheCorruptionError reports an unreadable cache entry
func NewCacheCorruptionError(key string, cause error) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeCacheCorruption,
		Message: "cache entry unreadable",
		Cause:   cause,
		Context: map[string]interface{}{"key": key},
	}
}

// NewEmptySampleError reports a date window without rows
func NewEmptySampleError(view string, start, end time.Time) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeEmptySample,
		Message: fmt.Sprintf("%s sample is empty for window [%s, %s]", view, start.Format("2006-01-02"), end.Format("2006-01-02")),
		Context: map[string]interface{}{
			"view":  view,
			"start": start.Format("2006-01-02"),
			"end":   end.Format("2006-01-02"),
		},
	}
}

// NewExecutionError wraps an unexpected failure inside a stage
func NewExecutionError(stage string, cause error) *PipelineError {
	return &PipelineError{Type: ErrorTypeExecution, Stage: stage, Message: "stage execution failed", Cause: cause}
}

// GetErrorType returns the pipeline error type, or execution for foreign errors
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ""
	}
	var pErr *PipelineError
	if As(err, &pErr) {
		return pErr.Type
	}
	return ErrorTypeExecution
}

// IsFatal reports whether err must abort the run.
// Cache corruption is always recovered by recomputation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return GetErrorType(err) != ErrorTypeCacheCorruption
}

// Is and As mirror the standard library so callers need a single import
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }

// Annotate attaches context entries to err. Errors that are not pipeline
// errors become execution errors of stage.
func Annotate(err error, stage string, kv ...interface{}) error {
	if err == nil {
		return nil
	}
	var pe *PipelineError
	if !As(err, &pe) {
		pe = NewExecutionError(stage, err)
	} else {
		pe = pe.WithStage(stage)
	}
	for i := 0; i+1 < len(kv); i += 2 {
		pe = pe.With(fmt.Sprint(kv[i]), kv[i+1])
	}
	return pe
}
