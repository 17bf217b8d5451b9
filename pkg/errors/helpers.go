package errors

import (
	"errors"
	"fmt"
)

// Wrap adds context to err. A typed cause keeps its code; anything else is
// filed as internal.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	code := CodeInternal
	var typed Error
	if errors.As(err, &typed) {
		code = typed.Code()
	}
	return &coded{code: code, message: message, cause: err}
}

func Wrapf(err error, format string, args ...any) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapCode wraps err under an explicit code such as CodeStorageError.
func WrapCode(err error, code, message string) error {
	if err == nil {
		return nil
	}
	return &coded{code: code, message: message, cause: err}
}

// CodeOf returns the outermost code in err's chain, CodeInternal for
// untyped errors and "" for nil.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var typed Error
	if errors.As(err, &typed) {
		return typed.Code()
	}
	return CodeInternal
}

// GetErrorMessage returns the outermost typed message, or err.Error() for
// untyped errors. Peers see this text, so causes are left out.
func GetErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var typed Error
	if errors.As(err, &typed) {
		return typed.Message()
	}
	return err.Error()
}

func IsNotFound(err error) bool   { return hasCode(err, CodeNotFound) }
func IsValidation(err error) bool { return hasCode(err, CodeValidation) }
func IsConflict(err error) bool   { return hasCode(err, CodeConflict) }
func IsTimeout(err error) bool    { return hasCode(err, CodeTimeout) }

// hasCode walks the whole chain so a wrapper with a different code does not
// hide the cause's kind.
func hasCode(err error, code string) bool {
	for err != nil {
		if typed, ok := err.(Error); ok && typed.Code() == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
