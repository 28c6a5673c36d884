package quiz

import (
	"errors"
	"fmt"
)

var (
	// ErrStorageUnavailable marks a missing or unreadable backing document.
	ErrStorageUnavailable = errors.New("quiz: storage unavailable")
	// ErrStorageCorrupt marks a backing document that failed to parse.
	ErrStorageCorrupt = errors.New("quiz: storage corrupt")
	// ErrUnknownUser marks a submission from a user with no registration data.
	ErrUnknownUser = errors.New("quiz: unknown user")
	// ErrAssetMissing marks a test image that could not be read.
	ErrAssetMissing = errors.New("quiz: asset missing")
)

// CountMismatchError reports a submission whose length differs from the
// answer key. Both counts are surfaced verbatim to the user.
type CountMismatchError struct {
	Got  int
	Want int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("quiz: %d answers vs %d questions", e.Got, e.Want)
}

// Code allows the router to derive a stable error code for logs.
func (e *CountMismatchError) Code() string {
	return "answer_count_mismatch"
}
