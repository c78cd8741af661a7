package build

import "strings"

// State is the builder lifecycle as a bit set. Sampled implies
// Serialized; the mesh, collision and navigation bits are independent
// children of Sampled.
type State uint8

const (
	Serialized State = 1 << iota
	Sampled
	MeshPreviewed
	MeshBaked
	CollisionReady
	NavigationReady
	Finalized
)

// Empty is the state of a fresh or destroyed builder.
const Empty State = 0

// derived covers everything produced from a grid.
const derived = MeshPreviewed | MeshBaked | CollisionReady | NavigationReady | Finalized

var stateNames = []struct {
	bit  State
	name string
}{
	{Serialized, "serialized"},
	{Sampled, "sampled"},
	{MeshPreviewed, "mesh-previewed"},
	{MeshBaked, "mesh-baked"},
	{CollisionReady, "collision-ready"},
	{NavigationReady, "navigation-ready"},
	{Finalized, "finalized"},
}

// Has reports whether every bit of f is set.
func (s State) Has(f State) bool {
	return s&f == f
}

func (s State) String() string {
	if s == Empty {
		return "empty"
	}
	var parts []string
	for _, n := range stateNames {
		if s&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}
