package world

import (
	"context"
	"errors"

	"pipegrid.ai/internal/protocol"
)

// ErrorCode maps a world error onto its wire code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownDef):
		return protocol.ErrUnknownDef
	case errors.Is(err, ErrCellOccupied):
		return protocol.ErrCellOccupied
	case errors.Is(err, ErrDuplicateStructure):
		return protocol.ErrDuplicateID
	case errors.Is(err, ErrUnknownStructure), errors.Is(err, ErrUnknownNetwork):
		return protocol.ErrNotFound
	case errors.Is(err, ErrInvalidSpec):
		return protocol.ErrBadRequest
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return protocol.ErrWorldBusy
	default:
		return protocol.ErrInternal
	}
}
