package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// World routing/state.
	ErrWorldBusy = "E_WORLD_BUSY"

	// Registration layer.
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrUnknownDef   = "E_UNKNOWN_DEF"
	ErrCellOccupied = "E_CELL_OCCUPIED"
	ErrDuplicateID  = "E_DUPLICATE_ID"
	ErrNotFound     = "E_NOT_FOUND"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrWorldBusy:       {},
	ErrBadRequest:      {},
	ErrUnknownDef:      {},
	ErrCellOccupied:    {},
	ErrDuplicateID:     {},
	ErrNotFound:        {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
