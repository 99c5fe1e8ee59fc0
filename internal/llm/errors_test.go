package llm

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
	}{
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{529, true},
		{400, false},
		{401, false},
		{403, false},
		{404, false},
	}
	for _, tc := range cases {
		err := classifyStatus(tc.status, fmt.Errorf("status %d", tc.status))
		if got := IsTransient(err); got != tc.transient {
			t.Errorf("status %d: IsTransient = %v, want %v", tc.status, got, tc.transient)
		}
		if got := IsFatal(err); got == tc.transient {
			t.Errorf("status %d: IsFatal = %v, want %v", tc.status, got, !tc.transient)
		}
	}
}

func TestErrorWrappersUnwrap(t *testing.T) {
	cause := errors.New("root cause")

	if !errors.Is(&TransientError{Err: cause}, cause) {
		t.Error("TransientError should unwrap to its cause")
	}
	if !errors.Is(&FatalError{Err: cause}, cause) {
		t.Error("FatalError should unwrap to its cause")
	}
	if IsTransient(cause) || IsFatal(cause) {
		t.Error("bare errors should classify as neither transient nor fatal")
	}
}
