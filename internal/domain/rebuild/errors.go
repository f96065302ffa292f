package rebuild

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a pipeline failure for retry decisions and reporting.
type Kind string

const (
	KindUnknown      Kind = "unknown"
	KindParse        Kind = "parse"
	KindPrerequisite Kind = "prerequisite"
	KindFormat       Kind = "mapping_format"
	KindSchema       Kind = "mapping_schema"
	KindReference    Kind = "mapping_reference"
	KindPolicy       Kind = "mapping_policy"
	KindTransport    Kind = "transport"
	KindApply        Kind = "apply"
)

// ParseError reports a malformed deck or template package.
type ParseError struct {
	Input string // "deck" or "template"
	Part  string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Part != "" {
		return fmt.Sprintf("parse %s: %s: %v", e.Input, e.Part, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Input, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// PrerequisiteError reports a missing source file or published template version.
type PrerequisiteError struct {
	What string
}

func (e *PrerequisiteError) Error() string { return "prerequisite missing: " + e.What }

// MappingError is implemented by every oracle output validation failure.
type MappingError interface {
	error
	Stage() Kind
	RawOutput() string
	Problems() []string
}

type MappingFormatError struct {
	Raw string
	Err error
}

func (e *MappingFormatError) Error() string {
	return fmt.Sprintf("mapping output is not valid JSON: %v", e.Err)
}
func (e *MappingFormatError) Unwrap() error      { return e.Err }
func (e *MappingFormatError) Stage() Kind        { return KindFormat }
func (e *MappingFormatError) RawOutput() string  { return e.Raw }
func (e *MappingFormatError) Problems() []string { return []string{e.Err.Error()} }

type MappingSchemaError struct {
	Raw        string
	Violations []string
}

func (e *MappingSchemaError) Error() string {
	return "mapping schema invalid: " + summarize(e.Violations)
}
func (e *MappingSchemaError) Stage() Kind        { return KindSchema }
func (e *MappingSchemaError) RawOutput() string  { return e.Raw }
func (e *MappingSchemaError) Problems() []string { return e.Violations }

type MappingReferenceError struct {
	Raw        string
	Violations []string
}

func (e *MappingReferenceError) Error() string {
	return "mapping references invalid: " + summarize(e.Violations)
}
func (e *MappingReferenceError) Stage() Kind        { return KindReference }
func (e *MappingReferenceError) RawOutput() string  { return e.Raw }
func (e *MappingReferenceError) Problems() []string { return e.Violations }

type MappingPolicyError struct {
	Raw        string
	Violations []string
}

func (e *MappingPolicyError) Error() string {
	return "mapping violates NO-GEN policy: " + summarize(e.Violations)
}
func (e *MappingPolicyError) Stage() Kind        { return KindPolicy }
func (e *MappingPolicyError) RawOutput() string  { return e.Raw }
func (e *MappingPolicyError) Problems() []string { return e.Violations }

// TransportError wraps oracle, network or storage failures that may succeed on retry.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// ApplyError is either a per-element problem (downgraded to a warning) or,
// when Fatal, an abort of the whole application.
type ApplyError struct {
	ElementID     string
	PlaceholderID string
	Reason        string
	Fatal         bool
}

func (e *ApplyError) Error() string {
	switch {
	case e.ElementID != "" && e.PlaceholderID != "":
		return fmt.Sprintf("%s -> %s: %s", e.ElementID, e.PlaceholderID, e.Reason)
	case e.ElementID != "":
		return fmt.Sprintf("%s: %s", e.ElementID, e.Reason)
	default:
		return e.Reason
	}
}

// Classify maps an error chain to its Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var pe *ParseError
	var pre *PrerequisiteError
	var me MappingError
	var te *TransportError
	var ae *ApplyError
	switch {
	case errors.As(err, &pe):
		return KindParse
	case errors.As(err, &pre):
		return KindPrerequisite
	case errors.As(err, &me):
		return me.Stage()
	case errors.As(err, &te):
		return KindTransport
	case errors.As(err, &ae):
		return KindApply
	}
	return KindUnknown
}

// IsDeterministic reports whether retrying with identical inputs cannot change the outcome.
func IsDeterministic(err error) bool {
	switch Classify(err) {
	case KindParse, KindPrerequisite, KindFormat, KindSchema, KindReference, KindPolicy, KindApply:
		return true
	}
	return false
}

const MaxErrorLen = 500

// TruncateError bounds an error message for the job record.
func TruncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.TrimSpace(err.Error())
	if len([]rune(msg)) <= MaxErrorLen {
		return msg
	}
	return TruncateRunes(msg, MaxErrorLen-3) + "..."
}

func summarize(v []string) string {
	switch len(v) {
	case 0:
		return "no details"
	case 1:
		return v[0]
	default:
		return fmt.Sprintf("%s (and %d more)", v[0], len(v)-1)
	}
}
