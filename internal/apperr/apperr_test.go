package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestGetKindMatchesWrappedError(t *testing.T) {
	err := New(KindConflict, "session.Fork", errors.New("already forking"))
	if got := GetKind(err); got != KindConflict {
		t.Fatalf("GetKind(%v) = %s, want %s", err, got, KindConflict)
	}
}

func TestGetKindMatchesBareSentinels(t *testing.T) {
	cases := map[error]Kind{
		ErrNotFound:        KindNotFound,
		ErrAlreadyExists:   KindConflict,
		ErrInvalidState:    KindConflict,
		ErrQuotaExceeded:   KindQuotaExceeded,
		ErrSessionTerminal: KindConflict,
	}
	for sentinel, want := range cases {
		if got := GetKind(sentinel); got != want {
			t.Errorf("GetKind(%v) = %s, want %s", sentinel, got, want)
		}
	}
}

func TestGetKindMatchesWrappedSentinel(t *testing.T) {
	wrapped := fmt.Errorf("store: get session: %w", ErrNotFound)
	if got := GetKind(wrapped); got != KindNotFound {
		t.Fatalf("GetKind(%v) = %s, want %s", wrapped, got, KindNotFound)
	}
}

func TestGetKindDefaultsToInternal(t *testing.T) {
	if got := GetKind(errors.New("boom")); got != KindInternal {
		t.Fatalf("GetKind(unknown) = %s, want %s", got, KindInternal)
	}
}

func TestHTTPStatusMapsBareSentinelToNotFound(t *testing.T) {
	if got := HTTPStatus(ErrNotFound); got != http.StatusNotFound {
		t.Fatalf("HTTPStatus(ErrNotFound) = %d, want %d", got, http.StatusNotFound)
	}
}

func TestHTTPStatusMapsEachKind(t *testing.T) {
	cases := map[Kind]int{
		KindNotFound:      http.StatusNotFound,
		KindInvalidInput:  http.StatusBadRequest,
		KindConflict:      http.StatusConflict,
		KindPermission:    http.StatusForbidden,
		KindQuotaExceeded: http.StatusTooManyRequests,
		KindUnavailable:   http.StatusServiceUnavailable,
		KindCanceled:      499,
		KindTimeout:       http.StatusGatewayTimeout,
		KindInternal:      http.StatusInternalServerError,
	}
	for kind, want := range cases {
		err := New(kind, "op", errors.New("x"))
		if got := HTTPStatus(err); got != want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", kind, got, want)
		}
	}
}
