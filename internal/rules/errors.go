package rules

import "fmt"

// ConfigurationError reports an unsupported trigger/condition/action kind
// at construction time. Only the offending entry is skipped.
type ConfigurationError struct {
	Entry string // "trigger", "condition" or "action"
	Kind  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("unsupported %s kind: %q", e.Entry, e.Kind)
}

// MissingCollaboratorError reports that an action's required collaborator
// was absent from the execution context.
type MissingCollaboratorError struct {
	Collaborator string
}

func (e *MissingCollaboratorError) Error() string {
	return e.Collaborator + " not found in context"
}

// MissingTargetError reports that an action could not resolve which task
// it operates on, neither from its config nor from the context.
type MissingTargetError struct {
	Action string
}

func (e *MissingTargetError) Error() string {
	return "task id not found in config or context for " + e.Action
}

// ValidationError reports a required action field that was absent or empty.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return e.Field + ": " + e.Reason
	}
	return e.Field + " not provided"
}

// ExternalCallError wraps a failed outbound call (transport error or
// non-2xx status).
type ExternalCallError struct {
	URL    string
	Status int
	Err    error
}

func (e *ExternalCallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("external call to %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("external call to %s returned status %d", e.URL, e.Status)
}

func (e *ExternalCallError) Unwrap() error { return e.Err }
