package graph

import (
	"sort"
	"strings"
)

// Role classifies what a part does in its network. Roles combine.
type Role uint16

const (
	// Transmitter is carried by every part; Normalize adds it explicitly.
	Transmitter Role = 1 << iota
	Storage
	Requester
	Controller
	Junction
	Producer
	Consumer
)

// AllRoles lists every single-bit role in bit order.
var AllRoles = []Role{Transmitter, Storage, Requester, Controller, Junction, Producer, Consumer}

var roleNames = map[Role]string{
	Transmitter: "TRANSMITTER",
	Storage:     "STORAGE",
	Requester:   "REQUESTER",
	Controller:  "CONTROLLER",
	Junction:    "JUNCTION",
	Producer:    "PRODUCER",
	Consumer:    "CONSUMER",
}

// Normalize returns r with the default Transmitter role included.
func Normalize(r Role) Role { return r | Transmitter }

// Has reports whether every bit of mask is set.
func (r Role) Has(mask Role) bool { return mask != 0 && r&mask == mask }

// Matches reports whether any bit of mask is set.
func (r Role) Matches(mask Role) bool { return r&mask != 0 }

// Each calls fn for every single role set in r, in bit order.
func (r Role) Each(fn func(Role)) {
	for _, x := range AllRoles {
		if r&x != 0 {
			fn(x)
		}
	}
}

func (r Role) String() string {
	if r == 0 {
		return "NONE"
	}
	var parts []string
	r.Each(func(x Role) { parts = append(parts, roleNames[x]) })
	return strings.Join(parts, "|")
}

// ParseRoles turns names like ["storage","controller"] into a normalized mask.
// Unknown names are returned separately so callers can report them.
func ParseRoles(names []string) (Role, []string) {
	var r Role
	var unknown []string
	for _, n := range names {
		key := strings.ToUpper(strings.TrimSpace(n))
		found := false
		for role, name := range roleNames {
			if name == key {
				r |= role
				found = true
				break
			}
		}
		if !found && key != "" {
			unknown = append(unknown, n)
		}
	}
	sort.Strings(unknown)
	return Normalize(r), unknown
}
