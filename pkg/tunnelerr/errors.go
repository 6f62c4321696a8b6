// Package tunnelerr provides the single error taxonomy used throughout the
// authentication and session-isolation core. Every component returns or
// wraps a *Error rather than inventing its own error type.
package tunnelerr

import (
	"errors"
	"fmt"
)

// Category tags used for metrics and retry policy. Kept as plain strings
// (not an int enum) so they serialize cleanly into structured logs.
const (
	Config        = "config"
	Registry      = "registry"
	MCP           = "mcp"
	Routing       = "routing"
	ToolExecution = "tool_execution"
	Auth          = "auth"
	Security      = "security"
	Validation    = "validation"
	Connection    = "connection"
	IO            = "io"
	Serde         = "serde"
	YAML          = "yaml"
	HTTP          = "http"
	JSONSchema    = "json_schema"
	Internal      = "internal"
)

// Error is the sum type for every error this module surfaces.
type Error struct {
	Type     string
	Message  string
	Cause    error
	ToolName string // only meaningful when Type == ToolExecution
}

// NewError constructs an Error of the given category.
func NewError(errType, message string, cause error) *Error {
	return &Error{Type: errType, Message: message, Cause: cause}
}

// NewToolExecutionError constructs the ToolExecution{name,msg} variant.
func NewToolExecutionError(toolName, message string, cause error) *Error {
	return &Error{Type: ToolExecution, Message: message, Cause: cause, ToolName: toolName}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable returns true only for categories whose failures are expected to
// be transient: transport connections and tool-execution calls.
func (e *Error) Retryable() bool {
	return e.Type == Connection || e.Type == ToolExecution
}

// Collapse converts an arbitrary, possibly non-comparable error into a
// Routing-tagged Error carrying a formatted message. Used when an error
// must cross a boundary (e.g. into a background task's result struct) that
// requires the value to be safely cloned/compared by message only.
func Collapse(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return &Error{Type: Routing, Message: err.Error()}
}

func isType(err error, t string) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == t
}

// IsConfig, IsAuth, ... are typed predicate checkers, one per category.
func IsConfig(err error) bool        { return isType(err, Config) }
func IsRegistry(err error) bool      { return isType(err, Registry) }
func IsMCP(err error) bool           { return isType(err, MCP) }
func IsRouting(err error) bool       { return isType(err, Routing) }
func IsToolExecution(err error) bool { return isType(err, ToolExecution) }
func IsAuth(err error) bool          { return isType(err, Auth) }
func IsSecurity(err error) bool      { return isType(err, Security) }
func IsValidation(err error) bool    { return isType(err, Validation) }
func IsConnection(err error) bool    { return isType(err, Connection) }
func IsIO(err error) bool            { return isType(err, IO) }
func IsSerde(err error) bool         { return isType(err, Serde) }
func IsYAML(err error) bool          { return isType(err, YAML) }
func IsHTTP(err error) bool          { return isType(err, HTTP) }
func IsJSONSchema(err error) bool    { return isType(err, JSONSchema) }
func IsInternal(err error) bool      { return isType(err, Internal) }

// New<Type>Error constructors, one per category.
func NewConfigError(message string, cause error) *Error        { return NewError(Config, message, cause) }
func NewRegistryError(message string, cause error) *Error      { return NewError(Registry, message, cause) }
func NewMCPError(message string, cause error) *Error           { return NewError(MCP, message, cause) }
func NewRoutingError(message string, cause error) *Error       { return NewError(Routing, message, cause) }
func NewAuthError(message string, cause error) *Error          { return NewError(Auth, message, cause) }
func NewSecurityError(message string, cause error) *Error      { return NewError(Security, message, cause) }
func NewValidationError(message string, cause error) *Error    { return NewError(Validation, message, cause) }
func NewConnectionError(message string, cause error) *Error    { return NewError(Connection, message, cause) }
func NewIOError(message string, cause error) *Error            { return NewError(IO, message, cause) }
func NewSerdeError(message string, cause error) *Error         { return NewError(Serde, message, cause) }
func NewYAMLError(message string, cause error) *Error          { return NewError(YAML, message, cause) }
func NewHTTPError(message string, cause error) *Error          { return NewError(HTTP, message, cause) }
func NewJSONSchemaError(message string, cause error) *Error    { return NewError(JSONSchema, message, cause) }
func NewInternalError(message string, cause error) *Error      { return NewError(Internal, message, cause) }
