package prompt

import (
	"errors"
	"fmt"
)

// ErrCantConvertSelf signals a conversion onto the message's own provider.
// Callers treat it as "use the message as-is", never as a failure.
var ErrCantConvertSelf = errors.New("message already uses the target provider format")

// ErrNoBindArguments is returned by Bind when neither a name/value pair nor
// a value map was supplied.
var ErrNoBindArguments = errors.New("bind requires a name and value or a non-empty value map")

// UnsupportedConversionError reports a cross-provider message conversion
// that would drop non-text content.
type UnsupportedConversionError struct {
	From   Provider
	To     Provider
	Reason string
}

func (e *UnsupportedConversionError) Error() string {
	return fmt.Sprintf("cannot convert %s message to %s format: %s", e.From, e.To, e.Reason)
}

// ProviderMismatchError reports settings attached to a prompt of a different
// provider.
type ProviderMismatchError struct {
	Settings Provider
	Prompt   Provider
}

func (e *ProviderMismatchError) Error() string {
	return fmt.Sprintf("%s settings cannot be used with a %s prompt", e.Settings, e.Prompt)
}

// EmptyResponseError reports a provider response with no usable content.
type EmptyResponseError struct {
	Provider Provider
}

func (e *EmptyResponseError) Error() string {
	return fmt.Sprintf("%s response contains no content", e.Provider)
}
