package web

import "fmt"

// Stable error codes carried by ExecutionError. The router surfaces them in
// failed execution results; clients key UI messages off them.
const (
	CodeUnsafeURL        = "WEB_UNSAFE_URL"
	CodeOpenTimeout      = "WEB_OPEN_TIMEOUT"
	CodeOpenFailed       = "WEB_OPEN_FAILED"
	CodeResolutionFailed = "WEB_RESOLUTION_FAILED"
	CodeRuntimeMissing   = "WEB_PLAYWRIGHT_MISSING"
	CodeFormFillDisabled = "WEB_FORM_FILL_DISABLED"
	CodeFieldNotFound    = "WEB_FORM_FIELD_NOT_FOUND"
	CodeSubmitFailed     = "WEB_FORM_SUBMIT_FAILED"
	CodeUnexpected       = "WEB_UNEXPECTED"

	CodeWAMissingContact = "WA_MISSING_CONTACT"
	CodeWAMissingMessage = "WA_MISSING_MESSAGE"
	CodeWANotLoggedIn    = "WA_NOT_LOGGED_IN"
	CodeWAContactMissing = "WA_CONTACT_NOT_FOUND"
	CodeWAChatNotReady   = "WA_CHAT_NOT_READY"
)

// ExecutionError is a structured web-execution failure. ScreenshotPath is
// set when the executor captured the page at the moment of an unexpected
// failure.
type ExecutionError struct {
	Code           string
	Message        string
	ScreenshotPath string
}

func (e *ExecutionError) Error() string {
	return e.Code + ": " + e.Message
}

func errRuntimeMissing(intentName string) *ExecutionError {
	return &ExecutionError{
		Code:    CodeRuntimeMissing,
		Message: fmt.Sprintf("browser runtime unavailable, cannot execute %s", intentName),
	}
}
