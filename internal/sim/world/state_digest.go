package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	w.digestStructures(h, &tmp)
	w.digestNetworks(h, &tmp)

	return hex.EncodeToString(h.Sum(nil))
}

// StateDigest exposes the digest of the current state for tests and tooling.
func (w *World) StateDigest() string { return w.stateDigest(w.tick.Load()) }

func (w *World) digestStructures(h hashWriter, tmp *[8]byte) {
	for _, id := range w.StructureIDs() {
		s := w.structures[id]
		digestWriteString(h, tmp, s.ID)
		digestWriteString(h, tmp, s.Def)
		digestWriteI64(h, tmp, int64(s.Pos.X))
		digestWriteI64(h, tmp, int64(s.Pos.Y))
		digestWriteI64(h, tmp, int64(s.Rotation))
		if ct := s.Part.Container; ct != nil {
			entries := ct.Stack().Entries()
			digestWriteU64(h, tmp, uint64(len(entries)))
			for _, e := range entries {
				digestWriteString(h, tmp, e.Type)
				digestWriteF64(h, tmp, e.Value)
			}
		}
		if r := s.Part.Requester; r != nil {
			h.Write([]byte{byte(r.State())})
		}
	}
}

func (w *World) digestNetworks(h hashWriter, tmp *[8]byte) {
	for _, id := range w.NetworkIDs() {
		c := w.networks[id]
		digestWriteString(h, tmp, c.ID())
		digestWriteString(h, tmp, c.Network())
		h.Write([]byte{boolByte(c.Working())})

		members := make([]string, 0, c.Len())
		for _, p := range c.Parts() {
			members = append(members, p.ID)
		}
		sort.Strings(members)
		digestWriteU64(h, tmp, uint64(len(members)))
		for _, m := range members {
			digestWriteString(h, tmp, m)
		}

		edges := c.Graph().Edges()
		digestWriteU64(h, tmp, uint64(len(edges)))
		for _, e := range edges {
			digestWriteString(h, tmp, e.From.ID)
			digestWriteString(h, tmp, e.To.ID)
			h.Write([]byte{byte(e.Mode)})
			digestWriteI64(h, tmp, int64(e.Length))
			digestWriteF64(h, tmp, e.Flow())
		}
	}
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWriteF64(h hashWriter, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

// Strings are length-prefixed so adjacent fields cannot collide.
func digestWriteString(h hashWriter, tmp *[8]byte, s string) {
	digestWriteU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
