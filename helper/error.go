package helper

import "fmt"

// NewError wraps an error with the operation that failed. A nil err returns nil.
func NewError(context string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("error in %s: %w", context, err)
}
