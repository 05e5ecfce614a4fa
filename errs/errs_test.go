package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorString(t *testing.T) {
	err := WithReason(State, "veto.Override", ReasonTooEarly, "ends at %s", "tomorrow")
	require.Equal(t, "veto.Override: state (too_early): ends at tomorrow", err.Error())

	err = New(NotFound, "", "node %s", "x")
	require.Equal(t, "not_found: node x", err.Error())
}

func TestWrapKeepsExistingKind(t *testing.T) {
	inner := New(Duplicate, "repo", "dup")
	wrapped := Wrap(Storage, "outer", fmt.Errorf("context: %w", inner), "write")
	require.Equal(t, Duplicate, wrapped.Kind)

	require.Nil(t, Wrap(Storage, "op", nil, "nothing"))

	base := errors.New("disk full")
	storage := Wrap(Storage, "repo.Put", base, "put")
	require.True(t, IsKind(storage, Storage))
	require.True(t, storage.Retryable())
	require.ErrorIs(t, storage, base)
}

func TestKindAndReasonOf(t *testing.T) {
	require.Equal(t, Kind(""), KindOf(errors.New("plain")))
	require.Equal(t, ReasonNone, ReasonOf(errors.New("plain")))

	err := fmt.Errorf("wrapped: %w", StateErr("op", ReasonInactive, "suspended"))
	require.Equal(t, State, KindOf(err))
	require.Equal(t, ReasonInactive, ReasonOf(err))
	require.False(t, New(Validation, "op", "bad").Retryable())
}
