package state

import (
	"errors"
	"testing"
)

func TestValidateRequestSequence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		sequence []string
		wantErr  bool
	}{
		{
			name:     "kernel info",
			sequence: []string{SequenceStatusBusy, "kernel_info_reply", SequenceStatusIdle},
		},
		{
			name:     "execute with outputs",
			sequence: []string{SequenceStatusBusy, "pyin", "stream", "pyerr", "pyout", "execute_reply", SequenceStatusIdle},
		},
		{
			name:     "missing busy",
			sequence: []string{"pyin", "execute_reply", SequenceStatusIdle},
			wantErr:  true,
		},
		{
			name:     "idle before reply",
			sequence: []string{SequenceStatusBusy, "pyout", SequenceStatusIdle, "execute_reply"},
			wantErr:  true,
		},
		{
			name:     "output after reply",
			sequence: []string{SequenceStatusBusy, "execute_reply", "pyout", SequenceStatusIdle},
			wantErr:  true,
		},
		{
			name:     "two replies",
			sequence: []string{SequenceStatusBusy, "execute_reply", "execute_reply", SequenceStatusIdle},
			wantErr:  true,
		},
		{
			name:     "nested busy",
			sequence: []string{SequenceStatusBusy, SequenceStatusBusy, "execute_reply", SequenceStatusIdle},
			wantErr:  true,
		},
		{
			name:     "too short",
			sequence: []string{SequenceStatusBusy, SequenceStatusIdle},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateRequestSequence("msg-1", tt.sequence)
			if tt.wantErr && err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
			if tt.wantErr {
				var sequenceErr *SequenceError
				if !errors.As(err, &sequenceErr) {
					t.Fatalf("error type = %T, want *SequenceError", err)
				}
				if sequenceErr.RequestID != "msg-1" {
					t.Fatalf("request id = %q, want msg-1", sequenceErr.RequestID)
				}
			}
		})
	}
}
