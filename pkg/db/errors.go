package db

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	storage_go "github.com/supabase-community/storage-go"

	"voice-dashboard/pkg/domain"
)

// ErrDuplicate is returned when an insert hits a unique constraint.
var ErrDuplicate = errors.New("duplicate key")

// PostgREST and Postgres error codes the stores react to.
const (
	CodeNoRows          = "PGRST116"
	CodeUniqueViolation = "23505"
	CodeInsufficientACL = "42501"
)

// postgrest-go formats failures as "(CODE) message".
var restErrorPattern = regexp.MustCompile(`^\(([^)]*)\) (.*)$`)

// restError maps a postgrest-go error onto the domain errors.
func restError(op string, err error) error {
	if err == nil {
		return nil
	}
	code, msg := "", err.Error()
	if m := restErrorPattern.FindStringSubmatch(msg); m != nil {
		code, msg = m[1], m[2]
	}
	return codeError(op, code, msg)
}

func codeError(op, code, msg string) error {
	switch code {
	case CodeNoRows:
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	case CodeInsufficientACL:
		return fmt.Errorf("%s: %w", op, domain.ErrForbidden)
	case CodeUniqueViolation:
		return fmt.Errorf("%s: %w: %w", op, ErrDuplicate, &domain.BackendError{Code: code, Message: msg})
	}
	return &domain.BackendError{Code: code, Message: op + ": " + msg}
}

// storageError maps a storage-go error onto the domain errors.
func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *storage_go.StorageError
	if !errors.As(err, &se) {
		return &domain.BackendError{Message: op + ": " + err.Error()}
	}

	msg := strings.ToLower(se.Message)
	switch {
	case se.Status == http.StatusNotFound || strings.Contains(msg, "not found"):
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	case se.Status == http.StatusForbidden || se.Status == http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", op, domain.ErrForbidden)
	}
	return &domain.BackendError{Status: se.Status, Message: op + ": " + se.Message}
}
