package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
)

// StateDigest hashes the tick, terrain, agent motion state and the obstacle
// registry. Two worlds fed the same inputs report the same digest.
func (w *World) StateDigest() string {
	h := sha256.New()
	writeU64(h, w.tick.Load())
	td := w.chunks.Digest()
	h.Write(td[:])
	for _, id := range w.order {
		a := w.agents[id]
		h.Write([]byte(id))
		p := a.act.Position()
		writeF64(h, p.X)
		writeF64(h, p.Y)
		writeF64(h, p.Z)
		writeF64(h, a.act.Rotation())
		writeF64(h, a.act.TargetRotation())
		if a.act.IsWalking() {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
		writeF64(h, a.sleep)
	}
	for _, c := range w.pf.Obstacles() {
		writeU64(h, uint64(int64(c.X)))
		writeU64(h, uint64(int64(c.Y)))
		writeU64(h, uint64(int64(c.Z)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeU64(h hash.Hash, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	h.Write(b[:])
}

func writeF64(h hash.Hash, v float64) { writeU64(h, math.Float64bits(v)) }
