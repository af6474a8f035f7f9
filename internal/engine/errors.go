package engine

import (
	"fmt"
	"time"
)

// ErrorKind classifies where in the pipeline a processing error occurred.
type ErrorKind string

const (
	ErrValidation     ErrorKind = "validation"
	ErrScan           ErrorKind = "scan"
	ErrClassification ErrorKind = "classification"
	ErrCopy           ErrorKind = "copy"
	ErrVerification   ErrorKind = "verification"
	ErrFatal          ErrorKind = "fatal"
)

// ProcessingError records one non-fatal failure during a run. The run
// continues past these; they are counted, logged, and written to the
// error log in the reporting phase.
type ProcessingError struct {
	Kind    ErrorKind `json:"kind"`
	Path    string    `json:"path,omitempty"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

func (e ProcessingError) String() string {
	if e.Path != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Path, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}
