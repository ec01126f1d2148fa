// Package errors defines the failure taxonomy of the detection pipeline.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrDedupRejected  = errors.New("announcement already admitted")
	ErrNotFound       = errors.New("not found")
	ErrQueueFull      = errors.New("work queue full")
	ErrNoUsableFields = errors.New("no strategy produced a usable field")
	ErrConfigInvalid  = errors.New("invalid configuration")
)

// Kind classifies a failure for error reporting. Some kinds are informational
// and never terminate an announcement.
type Kind string

const (
	SourceUnavailable       Kind = "SourceUnavailable"
	DownloadFailed          Kind = "DownloadFailed"
	ExtractionFailed        Kind = "ExtractionFailed"
	LowConfidenceExtraction Kind = "LowConfidenceExtraction"
	EstimateMissing         Kind = "EstimateMissing"
	AnalysisInputMissing    Kind = "AnalysisInputMissing"
	DedupRejected           Kind = "DedupRejected"
	Timeout                 Kind = "Timeout"
	InvalidInput            Kind = "InvalidInput"
	SinkFailed              Kind = "SinkFailed"
	Unknown                 Kind = "Unknown"
)

// Terminal reports whether a failure of this kind ends an announcement's run.
func (k Kind) Terminal() bool {
	switch k {
	case LowConfidenceExtraction, EstimateMissing, AnalysisInputMissing, DedupRejected:
		return false
	}
	return true
}

type PipelineError struct {
	Stage  string
	Kind   Kind
	Symbol string
	Err    error
}

func (e *PipelineError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("%s [%s] %s: %v", e.Kind, e.Stage, e.Symbol, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Kind, e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func New(stage string, kind Kind, symbol string, err error) *PipelineError {
	return &PipelineError{Stage: stage, Kind: kind, Symbol: symbol, Err: err}
}

// KindOf returns the Kind carried by err, or Unknown.
func KindOf(err error) Kind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, ErrDedupRejected) {
		return DedupRejected
	}
	return Unknown
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Report context keys describing the announcement of a failed run.
const (
	CtxTraceID       = "trace_id"
	CtxIdentity      = "identity"
	CtxDescription   = "description"
	CtxAttachmentURL = "attachment_url"
	CtxCompanyName   = "company_name"
	CtxDetectedIn    = "detected_in"
)

// Report is one non-fatal failure handed to the error-reporting boundary.
type Report struct {
	Stage   string
	Symbol  string
	Kind    Kind
	Message string
	Context map[string]string
}

// ReportOf builds a Report from err, taking stage, kind and symbol from a
// wrapped *PipelineError when there is one.
func ReportOf(stage, symbol string, err error) Report {
	r := Report{Stage: stage, Symbol: symbol, Kind: KindOf(err)}
	if err != nil {
		r.Message = err.Error()
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		if pe.Stage != "" {
			r.Stage = pe.Stage
		}
		if pe.Symbol != "" {
			r.Symbol = pe.Symbol
		}
	}
	return r
}

// Reporter receives failure reports. Implementations must not block the
// caller for long.
type Reporter interface {
	ReportError(r Report)
}
