package source

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Validation error codes (E200-E299)
const (
	ErrSchema          = "E200" // document does not match the CUE schema
	ErrUnknownKind     = "E201" // event kind has no schema definition
	ErrLocatorMissing  = "E202" // neither event_key nor tx_hash given
	ErrLocatorConflict = "E203" // both event_key and tx_hash given
	ErrLogIndexMissing = "E204" // tx_hash without log_index
	ErrBadAmount       = "E205" // amount outside the uint256 range
	ErrBadTime         = "E206" // timestamp is neither unix seconds nor RFC 3339
	ErrBadAddress      = "E207" // address failed normalization
	ErrDuplicateTerms  = "E208" // contract listed twice
)

// SchemaError is a CUE schema violation with source position.
type SchemaError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *SchemaError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: [%s] %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			ErrSchema, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", ErrSchema, e.Field, e.Message)
}

// ValidationError is a semantic problem found while decoding a document.
type ValidationError struct {
	File    string `json:"file,omitempty"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: [%s] %s: %s", e.File, e.Line, e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: [%s] %s: %s", e.File, e.Code, e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(field string, err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// First error is the most specific one CUE reports.
	first := errs[0]
	msg, args := first.Msg()
	se := &SchemaError{
		Field:   field,
		Message: fmt.Sprintf(msg, args...),
	}
	if path := first.Path(); len(path) > 0 {
		se.Field = strings.Join(path, ".")
	}
	// Prefer a position in the input document over one in the schema.
	for _, pos := range errors.Positions(first) {
		if !se.Pos.IsValid() || pos.Filename() != schemaFilename {
			se.Pos = pos
		}
		if pos.Filename() != schemaFilename {
			break
		}
	}
	return se
}
