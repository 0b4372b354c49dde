package volume

import (
	"math"
	"sort"

	"pipegrid.ai/internal/sim/network/value"
)

// Amounts below epsilon are treated as zero to keep float noise out of capacity checks.
const epsilon = 1e-9

type CapacityMode int

const (
	// CapacityTotal bounds the sum of all stored types.
	CapacityTotal CapacityMode = iota
	// CapacityPerType bounds every type independently.
	CapacityPerType
)

func ParseCapacityMode(s string) CapacityMode {
	if s == "per_type" || s == "PER_TYPE" {
		return CapacityPerType
	}
	return CapacityTotal
}

type FillState int

const (
	Empty FillState = iota
	Partial
	Full
)

func (f FillState) String() string {
	switch f {
	case Empty:
		return "EMPTY"
	case Full:
		return "FULL"
	default:
		return "PARTIAL"
	}
}

// Filter gates how one resource type may move through a container.
type Filter struct {
	Receive  bool `json:"receive"`
	Store    bool `json:"store"`
	Transfer bool `json:"transfer"`
}

func AllowAll() Filter { return Filter{Receive: true, Store: true, Transfer: true} }

// Listener receives every stack change. Network registries use it to keep
// their aggregate caches current without rescanning containers.
type Listener interface {
	NotifyAddedValue(typ string, v float64)
	NotifyRemovedValue(typ string, v float64)
}

type Config struct {
	Capacity float64
	Mode     CapacityMode

	// Filters lists the allowed types. A type absent from the map can never be stored.
	Filters map[string]Filter

	// CapacityFactor scales the per-type bound in CapacityPerType mode (missing = 1).
	CapacityFactor map[string]float64
}

// Container is a bounded holder of one value stack.
// All mutation goes through TryAdd/TryRemove/TryTransferTo.
type Container struct {
	cfg     Config
	allowed []string

	stack    value.Stack
	listener Listener

	markTotal float64
	recent    float64
}

func New(cfg Config) *Container {
	if cfg.Capacity < 0 {
		cfg.Capacity = 0
	}
	if cfg.Filters == nil {
		cfg.Filters = map[string]Filter{}
	}
	allowed := make([]string, 0, len(cfg.Filters))
	for t, f := range cfg.Filters {
		if f.Store {
			allowed = append(allowed, t)
		}
	}
	sort.Strings(allowed)
	return &Container{cfg: cfg, allowed: allowed}
}

func (c *Container) SetListener(l Listener) { c.listener = l }

func (c *Container) Capacity() float64 { return c.cfg.Capacity }

func (c *Container) Mode() CapacityMode { return c.cfg.Mode }

// Stack returns the current stack. Stacks are immutable, so the caller gets a safe copy.
func (c *Container) Stack() value.Stack { return c.stack }

func (c *Container) Stored() float64 { return c.stack.Total() }

func (c *Container) StoredOf(typ string) float64 { return c.stack.Get(typ) }

// AllowedTypes returns the sorted set of types this container may store.
func (c *Container) AllowedTypes() []string {
	out := make([]string, len(c.allowed))
	copy(out, c.allowed)
	return out
}

func (c *Container) filter(typ string) (Filter, bool) {
	f, ok := c.cfg.Filters[typ]
	return f, ok
}

func (c *Container) Allows(typ string) bool {
	f, ok := c.filter(typ)
	return ok && f.Store
}

// Accepts reports whether typ may be received from outside.
func (c *Container) Accepts(typ string) bool {
	f, ok := c.filter(typ)
	return ok && f.Store && f.Receive
}

func (c *Container) CanTransfer(typ string) bool {
	f, ok := c.filter(typ)
	return ok && f.Transfer
}

func (c *Container) capacityFor(typ string) float64 {
	if c.cfg.Mode != CapacityPerType {
		return c.cfg.Capacity
	}
	factor := 1.0
	if f, ok := c.cfg.CapacityFactor[typ]; ok && f > 0 {
		factor = f
	}
	return c.cfg.Capacity * factor
}

// Free returns the remaining total capacity. In per-type mode it is the sum of per-type headroom.
func (c *Container) Free() float64 {
	if c.cfg.Mode == CapacityPerType {
		var free float64
		for _, t := range c.allowed {
			free += c.FreeFor(t)
		}
		return free
	}
	return nonNeg(c.cfg.Capacity - c.stack.Total())
}

// FreeFor returns how much of typ could still be added.
func (c *Container) FreeFor(typ string) float64 {
	if !c.Allows(typ) {
		return 0
	}
	if c.cfg.Mode == CapacityPerType {
		return nonNeg(c.capacityFor(typ) - c.stack.Get(typ))
	}
	return nonNeg(c.cfg.Capacity - c.stack.Total())
}

func (c *Container) totalCapacity() float64 {
	if c.cfg.Mode == CapacityPerType {
		var total float64
		for _, t := range c.allowed {
			total += c.capacityFor(t)
		}
		return total
	}
	return c.cfg.Capacity
}

// StoredPercent returns the fill fraction in [0,1].
func (c *Container) StoredPercent() float64 {
	capTotal := c.totalCapacity()
	if capTotal <= 0 {
		return 0
	}
	p := c.stack.Total() / capTotal
	if p > 1 {
		return 1
	}
	return p
}

func (c *Container) FillState() FillState {
	switch {
	case c.stack.Total() <= epsilon:
		return Empty
	case c.Free() <= epsilon:
		return Full
	default:
		return Partial
	}
}

// TryAdd stores up to v of typ from an external source.
func (c *Container) TryAdd(typ string, v float64) Result {
	if v <= 0 || math.IsNaN(v) {
		return Result{Status: Failed, Desired: v}
	}
	if !c.Accepts(typ) {
		return Result{Status: Failed, Desired: v}
	}
	return c.add(typ, v)
}

func (c *Container) add(typ string, v float64) Result {
	room := c.FreeFor(typ)
	if room <= epsilon {
		return Result{Status: Failed, Desired: v}
	}
	actual := v
	status := Completed
	if actual > room {
		actual = room
		status = CompletedWithExcess
	}
	c.set(typ, c.stack.Get(typ)+actual)
	if c.listener != nil {
		c.listener.NotifyAddedValue(typ, actual)
	}
	return Result{Status: status, Desired: v, Actual: actual}
}

// TryRemove takes up to v of typ out of the container.
func (c *Container) TryRemove(typ string, v float64) Result {
	if v <= 0 || math.IsNaN(v) {
		return Result{Status: Failed, Desired: v}
	}
	have := c.stack.Get(typ)
	if have <= epsilon {
		return Result{Status: Failed, Desired: v}
	}
	actual := v
	status := Completed
	if actual > have {
		actual = have
		status = CompletedWithShortage
	}
	rest := have - actual
	if rest <= epsilon {
		// Fold float dust into the removed amount so no phantom entry survives.
		actual = have
		rest = 0
	}
	c.set(typ, rest)
	if c.listener != nil {
		c.listener.NotifyRemovedValue(typ, actual)
	}
	return Result{Status: status, Desired: v, Actual: actual}
}

// TryTransferTo moves up to v of typ into dst. The moved amount is bounded by what
// this container holds and by dst's remaining room for typ.
func (c *Container) TryTransferTo(dst *Container, typ string, v float64) Result {
	if dst == nil || dst == c || v <= 0 || math.IsNaN(v) {
		return Result{Status: Failed, Desired: v}
	}
	if !c.CanTransfer(typ) || !dst.Accepts(typ) {
		return Result{Status: Failed, Desired: v}
	}
	want := v
	status := Completed
	if have := c.stack.Get(typ); want > have {
		want = have
		status = CompletedWithShortage
	}
	if room := dst.FreeFor(typ); want > room {
		want = room
		status = CompletedWithExcess
	}
	if want <= epsilon {
		return Result{Status: Failed, Desired: v}
	}
	removed := c.TryRemove(typ, want)
	if removed.Status == Failed {
		return Result{Status: Failed, Desired: v}
	}
	added := dst.add(typ, removed.Actual)
	if back := removed.Actual - added.Actual; back > 0 {
		c.add(typ, back)
	}
	if added.Actual <= 0 {
		return Result{Status: Failed, Desired: v}
	}
	return Result{Status: status, Desired: v, Actual: added.Actual}
}

// TransferProportional moves up to amount into dst, split across the transferable
// types in proportion to this container's composition. It returns the amount moved.
func (c *Container) TransferProportional(dst *Container, amount float64) float64 {
	if dst == nil || dst == c || amount <= epsilon {
		return 0
	}
	movable := c.stack.Filter(func(typ string) bool {
		return c.CanTransfer(typ) && dst.Accepts(typ)
	})
	total := movable.Total()
	if total <= epsilon {
		return 0
	}
	if amount > total {
		amount = total
	}
	var moved float64
	for _, e := range movable.Entries() {
		share := amount * e.Value / total
		if share <= epsilon {
			continue
		}
		r := c.TryTransferTo(dst, e.Type, share)
		moved += r.Actual
	}
	return moved
}

// Clear drops every stored value, notifying the listener.
func (c *Container) Clear() {
	for _, e := range c.stack.Entries() {
		c.TryRemove(e.Type, e.Value)
	}
}

// Load replaces the stack wholesale (snapshot import). Disallowed types are dropped
// and amounts are clipped to capacity.
func (c *Container) Load(s value.Stack) {
	c.Clear()
	for _, e := range s.Entries() {
		if !c.Allows(e.Type) {
			continue
		}
		c.add(e.Type, e.Value)
	}
	c.markTotal = c.stack.Total()
	c.recent = 0
}

// Mark records the start-of-tick total; RecentChange reports the magnitude of the
// change between the two most recent marks.
func (c *Container) Mark() {
	t := c.stack.Total()
	c.recent = math.Abs(t - c.markTotal)
	c.markTotal = t
}

func (c *Container) RecentChange() float64 { return c.recent }

// MarkedTotal is the total recorded by the last Mark.
func (c *Container) MarkedTotal() float64 { return c.markTotal }

// RestoreMark reinstates a mark taken before a snapshot so the next RecentChange
// matches an uninterrupted run.
func (c *Container) RestoreMark(total float64) { c.markTotal = total }

func (c *Container) set(typ string, v float64) {
	c.stack = c.stack.With(typ, v)
}

func nonNeg(v float64) float64 {
	if v < epsilon {
		return 0
	}
	return v
}
