package content

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

const (
	ErrorInvalidPath      = "invalid_path"
	ErrorOutsideRoot      = "outside_root"
	ErrorNotFound         = "not_found"
	ErrorPermissionDenied = "permission_denied"
	ErrorTooLarge         = "too_large"
	ErrorIO               = "io_error"
)

// Error is a categorized content lookup failure.
type Error struct {
	Category string
	Detail   string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Detail == "" {
		return e.Category
	}

	return fmt.Sprintf("%s: %s", e.Category, e.Detail)
}

// NewError creates a categorized content error.
func NewError(category string, detail string) error {
	return &Error{Category: category, Detail: detail}
}

// CategoryFromError returns the stable category for err.
func CategoryFromError(err error) string {
	if err == nil {
		return ""
	}

	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.Category
	}

	if errors.Is(err, fs.ErrNotExist) {
		return ErrorNotFound
	}
	if errors.Is(err, fs.ErrPermission) {
		return ErrorPermissionDenied
	}

	return ErrorIO
}

// IsNotFound reports whether err means the provider has no such file.
func IsNotFound(err error) bool {
	return CategoryFromError(err) == ErrorNotFound
}

// NormalizeIOError converts OS-level errors into category errors without
// leaking host paths into the detail text.
func NormalizeIOError(err error, detail string) error {
	if err == nil {
		return nil
	}

	category := CategoryFromError(err)
	if detail == "" {
		detail = err.Error()
	}

	switch category {
	case ErrorNotFound:
		return NewError(category, "file does not exist")
	case ErrorPermissionDenied:
		return NewError(category, "read not permitted")
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return NewError(category, pathErr.Err.Error())
	}

	return NewError(category, detail)
}
