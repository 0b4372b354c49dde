package value

import (
	"sort"
	"strconv"
	"strings"
)

// Entry is one resource type amount inside a Stack.
type Entry struct {
	Type  string  `json:"type"`
	Value float64 `json:"value"`
}

// Stack is an immutable multi-typed amount vector keyed by resource type id.
// Entries are kept sorted by type id so iteration order is deterministic.
// Every operator returns a new Stack; the receiver is never modified.
type Stack struct {
	entries []Entry
	total   float64
}

func Empty() Stack { return Stack{} }

// Of builds a stack from a map; non-positive amounts are dropped.
func Of(m map[string]float64) Stack {
	if len(m) == 0 {
		return Stack{}
	}
	entries := make([]Entry, 0, len(m))
	for t, v := range m {
		if t == "" || v <= 0 {
			continue
		}
		entries = append(entries, Entry{Type: t, Value: v})
	}
	return fromEntries(entries)
}

// Single returns a stack holding one type.
func Single(typ string, v float64) Stack {
	if typ == "" || v <= 0 {
		return Stack{}
	}
	return Stack{entries: []Entry{{Type: typ, Value: v}}, total: v}
}

func fromEntries(entries []Entry) Stack {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Type < entries[j].Type })
	// Input may be unsorted and contain duplicate types.
	out := entries[:0]
	for _, e := range entries {
		if n := len(out); n > 0 && out[n-1].Type == e.Type {
			out[n-1].Value += e.Value
			continue
		}
		out = append(out, e)
	}
	var total float64
	for _, e := range out {
		total += e.Value
	}
	return Stack{entries: out, total: total}
}

func (s Stack) Total() float64 { return s.total }

func (s Stack) IsEmpty() bool { return len(s.entries) == 0 }

func (s Stack) Len() int { return len(s.entries) }

func (s Stack) index(typ string) int {
	for i, e := range s.entries {
		if e.Type == typ {
			return i
		}
	}
	return -1
}

// Get returns the amount stored for typ (0 when absent).
func (s Stack) Get(typ string) float64 {
	if i := s.index(typ); i >= 0 {
		return s.entries[i].Value
	}
	return 0
}

func (s Stack) Has(typ string) bool { return s.index(typ) >= 0 }

// With returns a copy where typ is set to v. v <= 0 removes the entry.
func (s Stack) With(typ string, v float64) Stack {
	out := make([]Entry, 0, len(s.entries)+1)
	found := false
	for _, e := range s.entries {
		if e.Type == typ {
			found = true
			if v > 0 {
				out = append(out, Entry{Type: typ, Value: v})
			}
			continue
		}
		out = append(out, e)
	}
	if !found && v > 0 && typ != "" {
		out = append(out, Entry{Type: typ, Value: v})
	}
	return fromEntries(out)
}

func (s Stack) Add(o Stack) Stack {
	if o.IsEmpty() {
		return s
	}
	out := make([]Entry, 0, len(s.entries)+len(o.entries))
	out = append(out, s.entries...)
	out = append(out, o.entries...)
	return fromEntries(out)
}

// Sub subtracts o entry-wise; results below zero are dropped.
func (s Stack) Sub(o Stack) Stack {
	if o.IsEmpty() {
		return s
	}
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		v := e.Value - o.Get(e.Type)
		if v <= 0 {
			continue
		}
		out = append(out, Entry{Type: e.Type, Value: v})
	}
	return fromEntries(out)
}

func (s Stack) Mul(f float64) Stack {
	if f <= 0 {
		return Stack{}
	}
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, Entry{Type: e.Type, Value: e.Value * f})
	}
	return fromEntries(out)
}

// Div divides every entry by d. A non-positive divisor yields an empty stack.
func (s Stack) Div(d float64) Stack {
	if d <= 0 {
		return Stack{}
	}
	return s.Mul(1 / d)
}

// Filter keeps only the entries whose type satisfies keep.
func (s Stack) Filter(keep func(typ string) bool) Stack {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if keep(e.Type) {
			out = append(out, e)
		}
	}
	return fromEntries(out)
}

func (s Stack) Types() []string {
	out := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Type)
	}
	return out
}

// Entries returns a copy of the sorted entries.
func (s Stack) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s Stack) Map() map[string]float64 {
	out := make(map[string]float64, len(s.entries))
	for _, e := range s.entries {
		out[e.Type] = e.Value
	}
	return out
}

func (s Stack) String() string {
	if s.IsEmpty() {
		return "{}"
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, e := range s.entries {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(e.Type)
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(e.Value, 'f', -1, 64))
	}
	b.WriteByte('}')
	return b.String()
}
