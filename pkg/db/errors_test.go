package db

import (
	"errors"
	"fmt"
	"testing"

	storage_go "github.com/supabase-community/storage-go"

	"voice-dashboard/pkg/domain"
)

func TestRestError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		want     error
		wantCode string
	}{
		{"no rows", errors.New("(PGRST116) JSON object requested, multiple (or no) rows returned"), domain.ErrNotFound, ""},
		{"forbidden", errors.New("(42501) permission denied for table voice_records"), domain.ErrForbidden, ""},
		{"duplicate", errors.New("(23505) duplicate key value violates unique constraint"), ErrDuplicate, CodeUniqueViolation},
		{"other code", errors.New("(PGRST301) JWT expired"), domain.ErrBackendUnavailable, "PGRST301"},
		{"unformatted", errors.New("dial tcp: connection refused"), domain.ErrBackendUnavailable, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := restError("get recording", tt.err)
			if !errors.Is(err, tt.want) {
				t.Fatalf("restError() = %v, want %v", err, tt.want)
			}
			var be *domain.BackendError
			if errors.As(err, &be) && be.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", be.Code, tt.wantCode)
			}
		})
	}

	if restError("op", nil) != nil {
		t.Error("restError(nil) should be nil")
	}
}

func TestStorageError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"status 404", &storage_go.StorageError{Status: 404, Message: "gone"}, domain.ErrNotFound},
		{"message only", &storage_go.StorageError{Message: "Object not found"}, domain.ErrNotFound},
		{"forbidden", &storage_go.StorageError{Status: 403, Message: "new row violates row-level security policy"}, domain.ErrForbidden},
		{"unauthorized", &storage_go.StorageError{Status: 401, Message: "invalid jwt"}, domain.ErrForbidden},
		{"wrapped", fmt.Errorf("upload: %w", &storage_go.StorageError{Status: 404}), domain.ErrNotFound},
		{"server", &storage_go.StorageError{Status: 500, Message: "internal"}, domain.ErrBackendUnavailable},
		{"transport", errors.New("connection reset"), domain.ErrBackendUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := storageError("download a.wav", tt.err); !errors.Is(err, tt.want) {
				t.Errorf("storageError() = %v, want %v", err, tt.want)
			}
		})
	}
}
