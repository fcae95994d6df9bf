package schema

import "fmt"

// ErrorKind classifies a validation failure. All kinds are recoverable,
// user-facing conditions: they are collected on the query definition, never
// raised.
type ErrorKind int

const (
	// KindInvalid covers unparseable, out-of-range or malformed values.
	KindInvalid ErrorKind = iota
	// KindNotFoundByID means a reference id did not resolve to a record.
	KindNotFoundByID
	// KindNotFoundByString means a reference name/login/title did not
	// resolve, or matched more than one record.
	KindNotFoundByString
)

// ValidationError records one bad parameter value. Accumulated during
// validation and exposed via the query definition; never returned as a Go
// error from Validate.
type ValidationError struct {
	Param   string
	Kind    ErrorKind
	Message string
}

func (e ValidationError) String() string {
	return fmt.Sprintf("%s: %s", e.Param, e.Message)
}

// ConfigError is a programmer error: an unknown entity type, a structurally
// wrong host value for a hash-shaped attribute, or a malformed catalog
// declaration. These indicate code defects and are returned as hard errors,
// never downgraded to validation errors or empty results.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

// Configf builds a ConfigError.
func Configf(format string, args ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}
