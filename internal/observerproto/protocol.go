package observerproto

import (
	"github.com/Masterminds/semver/v3"

	"pipegrid.ai/internal/protocol"
)

// Version is the observer protocol version (separate from the HTTP API protocol).
const Version = "1.1.0"

// compatible accepts any client speaking the same major version.
var compatible = mustConstraint("^1.0.0")

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Compatible reports whether a client announcing v can be served.
func Compatible(v string) bool {
	sv, err := semver.NewVersion(v)
	if err != nil {
		return false
	}
	return compatible.Check(sv)
}

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Networks restricts the stream to these network ids; empty means all.
	Networks   []string `json:"networks,omitempty"`
	EveryTicks int      `json:"every_ticks,omitempty"`
	WithEdges  bool     `json:"with_edges,omitempty"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
	Resources       []string    `json:"resources"`
	NetworkDefs     []string    `json:"network_defs"`
	CatalogDigest   string      `json:"catalog_digest"`
}

type WorldParams struct {
	TickRateHz int     `json:"tick_rate_hz"`
	DT         float64 `json:"dt"`
	Topology   string  `json:"topology"`
}

// Server -> Client. Sent every EveryTicks ticks.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Digest          string `json:"digest,omitempty"`

	Networks []protocol.NetworkInfo `json:"networks"`
	Edges    []NetworkEdges         `json:"edges,omitempty"`

	Registered   []string `json:"registered,omitempty"`
	Deregistered []string `json:"deregistered,omitempty"`
}

type NetworkEdges struct {
	Network string              `json:"network"`
	Edges   []protocol.EdgeInfo `json:"edges"`
}
