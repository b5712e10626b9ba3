package errors

import "fmt"

// FriendlyError is an error whose message is written for end users. Fatal
// error handling prints the message directly, without the wrapping context
// that makes internal errors useful to developers.
type FriendlyError struct {
	Message string
}

// NewFriendlyError creates a user-friendly error according to the given
// format string.
func NewFriendlyError(format string, args ...interface{}) error {
	return FriendlyError{Message: fmt.Sprintf(format, args...)}
}

func (err FriendlyError) Error() string {
	return err.Message
}

// GetPrintableMessage returns the message that should be shown to users for
// the given error. Friendly errors are shown as is, anything else includes
// its full context chain.
func GetPrintableMessage(err error) string {
	if friendly, ok := RootCause(err).(FriendlyError); ok {
		return friendly.Message
	}
	return err.Error()
}
