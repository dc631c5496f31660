package interview

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrUserNotFound        = errors.New("user not found")
	ErrNotFound            = errors.New("video interview session not found or unauthorized")
	ErrQuestionNotFound    = errors.New("question not found in session")
	ErrAlreadyCompleted    = errors.New("interview session already completed")
	ErrResponseExists      = errors.New("a response was already recorded for this question")
	ErrMediaNotFound       = errors.New("media not found or unauthorized")
	ErrOracleFailed        = errors.New("ai service request failed")
	ErrTranscriptionFailed = errors.New("failed to transcribe audio")
)

// ValidationError lists every rule a request broke.
type ValidationError struct {
	Subject  string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Invalid %s: %s", e.Subject, strings.Join(e.Problems, ", "))
}

func oracleErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrOracleFailed, op, err)
}
