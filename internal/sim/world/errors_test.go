package world

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"pipegrid.ai/internal/protocol"
)

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("%w: X", ErrUnknownDef), protocol.ErrUnknownDef},
		{fmt.Errorf("%w: 1,0", ErrCellOccupied), protocol.ErrCellOccupied},
		{ErrDuplicateStructure, protocol.ErrDuplicateID},
		{ErrUnknownStructure, protocol.ErrNotFound},
		{ErrUnknownNetwork, protocol.ErrNotFound},
		{ErrInvalidSpec, protocol.ErrBadRequest},
		{context.DeadlineExceeded, protocol.ErrWorldBusy},
		{errors.New("boom"), protocol.ErrInternal},
	}
	for _, c := range cases {
		if got := ErrorCode(c.err); got != c.want {
			t.Fatalf("ErrorCode(%v)=%q want %q", c.err, got, c.want)
		}
		if !protocol.IsKnownCode(ErrorCode(c.err)) {
			t.Fatalf("unknown code for %v", c.err)
		}
	}
}
