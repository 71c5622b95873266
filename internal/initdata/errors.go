package initdata

import "fmt"

// Kind classifies a validation failure.
type Kind int

const (
	KindMissingField Kind = iota + 1
	KindInvalidHash
	KindInvalidJSON
	KindInvalidNumericField
	KindMalformedPayload
)

func (k Kind) String() string {
	switch k {
	case KindMissingField:
		return "missing_field"
	case KindInvalidHash:
		return "invalid_hash"
	case KindInvalidJSON:
		return "invalid_json"
	case KindInvalidNumericField:
		return "invalid_numeric_field"
	case KindMalformedPayload:
		return "malformed_payload"
	default:
		return "unknown"
	}
}

// Error is returned by Validate. Field names the offending payload field and
// Err keeps the underlying decoder error, if any. Neither the token nor raw
// field values are ever part of the message.
type Error struct {
	Kind  Kind
	Field string
	Err   error
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrMissingField        = &Error{Kind: KindMissingField}
	ErrInvalidHash         = &Error{Kind: KindInvalidHash}
	ErrInvalidJSON         = &Error{Kind: KindInvalidJSON}
	ErrInvalidNumericField = &Error{Kind: KindInvalidNumericField}
	ErrMalformedPayload    = &Error{Kind: KindMalformedPayload}
)

func MissingField(name string) *Error {
	return &Error{Kind: KindMissingField, Field: name}
}

func InvalidJSON(name string, cause error) *Error {
	return &Error{Kind: KindInvalidJSON, Field: name, Err: cause}
}

func InvalidNumericField(name string) *Error {
	return &Error{Kind: KindInvalidNumericField, Field: name}
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindMissingField:
		return fmt.Sprintf("initdata: missing field %q", e.Field)
	case KindInvalidHash:
		return "initdata: hash mismatch"
	case KindInvalidJSON:
		if e.Err != nil {
			return fmt.Sprintf("initdata: invalid json in %q: %v", e.Field, e.Err)
		}
		return fmt.Sprintf("initdata: invalid json in %q", e.Field)
	case KindInvalidNumericField:
		return fmt.Sprintf("initdata: field %q is not a valid number", e.Field)
	case KindMalformedPayload:
		return "initdata: payload is not valid urlencoded data"
	default:
		return "initdata: validation failed"
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind. A target with an
// empty Field matches any field.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Field == "" || t.Field == e.Field
}
