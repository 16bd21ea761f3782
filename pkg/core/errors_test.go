package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsKind_WrappedError(t *testing.T) {
	base := New(ErrNoCredits, "balance exhausted")
	wrapped := fmt.Errorf("send: %w", base)

	if !IsKind(wrapped, ErrNoCredits) {
		t.Fatalf("wrapped error should match ErrNoCredits")
	}
	if IsKind(wrapped, ErrBufferOverflow) {
		t.Fatalf("wrapped error should not match ErrBufferOverflow")
	}
	if IsKind(errors.New("plain"), ErrNoCredits) {
		t.Fatalf("plain error should not match any kind")
	}
}

func TestKindOf_Fallback(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != ErrInternal {
		t.Fatalf("KindOf(plain) = %s, want INTERNAL_ERROR", got)
	}
	if got := KindOf(New(ErrIPCRequestTimeout, "")); got != ErrIPCRequestTimeout {
		t.Fatalf("KindOf = %s, want INTERNAL_ZMQ_REQUEST_TIMEOUT", got)
	}
}

func TestFromWire(t *testing.T) {
	cases := []struct {
		wire string
		want Kind
	}{
		{"INVALID_AUTH", ErrInvalidAuth},
		{"NO_CREDITS", ErrNoCredits},
		{"EXTERNAL_NO_CREDITS", ErrNoCredits},
		{"INTERNAL_ZMQ_REQUEST_TIMEOUT", ErrIPCRequestTimeout},
		{"something_unknown", ErrInternal},
		{"", ErrInternal},
	}
	for _, tc := range cases {
		if got := FromWire(tc.wire); got != tc.want {
			t.Fatalf("FromWire(%q) = %s, want %s", tc.wire, got, tc.want)
		}
	}
}
