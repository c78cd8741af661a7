package scene

import (
	"encoding/binary"
	"hash/fnv"
	"math"

	"github.com/chazu/islebake/pkg/shape"
)

// Fingerprint hashes everything CollectShapes would return for builder.
// Equal fingerprints mean an unchanged shape snapshot.
func (g *Graph) Fingerprint(builder NodeID) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	put := func(f float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
		h.Write(buf[:])
	}
	for _, s := range g.CollectShapes(builder) {
		put(float64(s.Kind))
		put(float64(s.Operation))
		putTransform(put, s.Transform)
		put(s.Size.X)
		put(s.Size.Y)
		put(s.Size.Z)
		put(s.Radius)
		put(s.Height)
		put(s.Ring)
		put(s.EdgeRadius)
		put(s.HullWeight)
	}
	return h.Sum64()
}

func putTransform(put func(float64), t shape.Transform) {
	put(t.Position.X)
	put(t.Position.Y)
	put(t.Position.Z)
	put(t.Rotation.W)
	put(t.Rotation.V[0])
	put(t.Rotation.V[1])
	put(t.Rotation.V[2])
	put(t.Scale.X)
	put(t.Scale.Y)
	put(t.Scale.Z)
}
