// Package rpc implements the command dispatch surface of the Remap backend:
// the structured result type, the ordered guard-stage pipeline, and the
// name-to-handler dispatcher.
//
// Guard ordering matters and is fixed per command at registration time:
//
//	authenticate → authorize → validate-required → validate-enum → execute
//
// Order is data (the stage slice passed to Chain), not syntax, so it can be
// inspected and tested. Every guard failure produces the same result shape as
// a success — {success:false, errorCode, errorMessage} — except the
// authentication guard, which returns the distinguished ErrUnauthenticated
// error. The HTTP layer maps that error to a protocol-level 401 instead of a
// normal result payload.
package rpc

import "encoding/json"

// Command error codes, surfaced as the errorCode field of failure results.
const (
	CodeNotAdministrator                 = 1
	CodeValidation                       = 2
	CodeDefinitionNotFound               = 3
	CodeOrganizationNotFound             = 4
	CodeNotOrganizationMember            = 5
	CodeCreatingOrganizationFailed       = 6
	CodeAddingOrganizationMemberFailed   = 7
	CodeDeletingOrganizationMemberFailed = 8
	CodeTaskNotFound                     = 9
	CodeUncompletedTaskExists            = 10
	CodeOrderCreateFailed                = 11
	CodeCaptureOrderFailed               = 12
	CodeDuplicateOrder                   = 13
)

// Result is the uniform command result. Extra fields are flattened next to
// success/errorCode/errorMessage when marshalled, matching the wire shape
// {success, errorCode?, errorMessage?, ...}.
type Result struct {
	Success      bool
	ErrorCode    int
	ErrorMessage string
	Extra        map[string]any
}

// OK returns a success result carrying the given extra fields.
func OK(extra map[string]any) *Result {
	return &Result{Success: true, Extra: extra}
}

// Fail returns a failure result with the given code and message.
func Fail(code int, message string) *Result {
	return &Result{Success: false, ErrorCode: code, ErrorMessage: message}
}

// MarshalJSON flattens Extra into the top-level object. errorCode and
// errorMessage are omitted on success.
func (r *Result) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+3)
	for k, v := range r.Extra {
		out[k] = v
	}
	out["success"] = r.Success
	if !r.Success {
		out["errorCode"] = r.ErrorCode
		out["errorMessage"] = r.ErrorMessage
	}
	return json.Marshal(out)
}
