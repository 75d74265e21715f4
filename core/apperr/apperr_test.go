package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindMatching(t *testing.T) {
	base := New(NotFound, "sound %q not found", "abc")
	wrapped := fmt.Errorf("update: %w", base)

	if !errors.Is(wrapped, NotFound) {
		t.Fatal("errors.Is should match the kind through wrapping")
	}
	if errors.Is(wrapped, CorruptCatalog) {
		t.Fatal("errors.Is matched the wrong kind")
	}
	if got := KindOf(wrapped); got != NotFound {
		t.Errorf("KindOf = %s", got)
	}
	if got := MessageOf(wrapped); got != `sound "abc" not found` {
		t.Errorf("MessageOf = %q", got)
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("exit status 1")
	err := Wrap(FetchFailed, cause, "download failed")

	if !errors.Is(err, cause) {
		t.Error("cause should be reachable through Unwrap")
	}
	if KindOf(errors.New("plain")) != Internal {
		t.Error("plain errors should be Internal")
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{NotFound, http.StatusNotFound},
		{Unauthorized, http.StatusUnauthorized},
		{Forbidden, http.StatusForbidden},
		{PayloadTooLarge, http.StatusRequestEntityTooLarge},
		{InvalidSource, http.StatusBadRequest},
		{UnsupportedFormat, http.StatusBadRequest},
		{FetchFailed, http.StatusInternalServerError},
		{AudioProcessingError, http.StatusInternalServerError},
		{CorruptCatalog, http.StatusInternalServerError},
		{Internal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.kind.Status(); got != tt.want {
			t.Errorf("%s.Status() = %d, want %d", tt.kind, got, tt.want)
		}
	}
}
