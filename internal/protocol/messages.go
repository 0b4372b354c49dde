package protocol

// REGISTER_STRUCTURE (client -> server)
type RegisterStructureMsg struct {
	Type            string             `json:"type"`
	ProtocolVersion string             `json:"protocol_version"`
	ID              string             `json:"id"`
	Def             string             `json:"def"`
	Pos             [2]int             `json:"pos"`
	Rotation        int                `json:"rotation,omitempty"`
	Contents        map[string]float64 `json:"contents,omitempty"`
}

// DEREGISTER_STRUCTURE (client -> server)
type DeregisterStructureMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
}

// STRUCTURE (server -> client)
type StructureMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	Tick            uint64        `json:"tick"`
	Structure       StructureInfo `json:"structure"`
}

type StructureInfo struct {
	ID       string `json:"id"`
	Def      string `json:"def"`
	Network  string `json:"network,omitempty"`
	Pos      [2]int `json:"pos"`
	Rotation int    `json:"rotation,omitempty"`
	Roles    string `json:"roles"`

	StoredPercent float64            `json:"stored_percent"`
	Contents      map[string]float64 `json:"contents,omitempty"`
	Requester     string             `json:"requester,omitempty"`

	// Adjacent lists the ids of graph neighbours; conduit has none.
	Adjacent []string `json:"adjacent,omitempty"`
}

// NETWORKS (server -> client)
type NetworksMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	Tick            uint64        `json:"tick"`
	Networks        []NetworkInfo `json:"networks"`
}

type NetworkInfo struct {
	ID      string `json:"id"`
	Def     string `json:"def"`
	Working bool   `json:"working"`

	Parts int `json:"parts"`
	Nodes int `json:"nodes"`
	Edges int `json:"edges"`

	Total  float64            `json:"total"`
	Units  float64            `json:"units"`
	ByType map[string]float64 `json:"by_type,omitempty"`
	ByRole map[string]float64 `json:"by_role,omitempty"`
}

type EdgeInfo struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Mode   string  `json:"mode"`
	Length int     `json:"length"`
	Flow   float64 `json:"flow"`
}

// ACK (server -> client) confirms a request that has no richer reply.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick,omitempty"`
	Ref             string `json:"ref"`
	ID              string `json:"id"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(code, msg string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: msg}
}
