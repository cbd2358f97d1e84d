package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFault_KindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{
			name: "nil-adjacent plain error",
			err:  errors.New("boom"),
			want: KindUnknown,
		},
		{
			name: "direct fault",
			err:  New(KindGeneration, "llm call failed"),
			want: KindGeneration,
		},
		{
			name: "wrapped fault",
			err:  fmt.Errorf("outer: %w", New(KindDispatch, "bad table")),
			want: KindDispatch,
		},
		{
			name: "fault wrapping fault keeps outer kind",
			err:  Wrap(KindExecution, New(KindInvalidOutputType, "inner"), "outer"),
			want: KindExecution,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestFault_Retryable(t *testing.T) {
	require.True(t, Retryable(New(KindGeneration, "g")))
	require.True(t, Retryable(New(KindExecution, "e")))
	require.True(t, Retryable(New(KindInvalidOutputType, "t")))
	require.True(t, Retryable(errors.New("untyped")))
	require.False(t, Retryable(New(KindDispatch, "d")))
	require.False(t, Retryable(New(KindConfiguration, "c")))
}

func TestFault_TraceOf(t *testing.T) {
	require.Equal(t, "", TraceOf(nil))
	require.Equal(t, "plain", TraceOf(errors.New("plain")))

	withTrace := New(KindExecution, "ran off a cliff").WithTrace("goroutine 1 [running]:\nmain.Run()")
	require.Equal(t, "goroutine 1 [running]:\nmain.Run()", TraceOf(withTrace))

	wrapped := fmt.Errorf("while executing: %w", withTrace)
	require.Equal(t, "goroutine 1 [running]:\nmain.Run()", TraceOf(wrapped))
}

func TestFault_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindGeneration, cause, "anthropic API error")
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "generation")
	require.Contains(t, err.Error(), "connection refused")
}
