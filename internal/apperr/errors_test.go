package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Class
	}{
		{ErrStaleSequence, Policy},
		{ErrTerminalOrder, Policy},
		{ErrInvalidSignature, Validation},
		{ErrPoisonedBatch, Fatal},
		{ErrSnapshotChecksum, Fatal},
		{errors.New("unmapped"), Transient},
		{fmt.Errorf("wrapped: %w", ErrTerminalOrder), Policy},
	}
	for _, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Errorf("Classify(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
