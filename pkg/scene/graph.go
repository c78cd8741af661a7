// Package scene is a small in-memory scene graph: groups and primitives
// arranged under builder nodes, each with an output node that receives
// the builder's artifacts. It is what scene scripts produce and what
// builders read their shapes from.
package scene

import (
	"fmt"

	"github.com/chazu/islebake/pkg/build"
	"github.com/chazu/islebake/pkg/shape"
)

// Graph is a forest of nodes. It must only be touched from the goroutine
// that owns it.
type Graph struct {
	Nodes     map[NodeID]*Node  `json:"nodes"`
	Roots     []NodeID          `json:"roots"`
	NameIndex map[string]NodeID `json:"name_index"`
	Version   uint64            `json:"version"`
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		Nodes:     make(map[NodeID]*Node),
		NameIndex: make(map[string]NodeID),
	}
}

// AddNode adds a node to the graph. It does not check for duplicates.
func (g *Graph) AddNode(n *Node) {
	g.Nodes[n.ID] = n
	if n.Name != "" {
		g.NameIndex[n.Name] = n.ID
	}
}

// AddRoot registers a node ID as a root of the graph.
func (g *Graph) AddRoot(id NodeID) {
	g.Roots = append(g.Roots, id)
}

// Lookup returns the node with the given user-assigned name, or nil.
func (g *Graph) Lookup(name string) *Node {
	id, ok := g.NameIndex[name]
	if !ok {
		return nil
	}
	return g.Nodes[id]
}

// Get returns the node with the given ID, or nil.
func (g *Graph) Get(id NodeID) *Node {
	return g.Nodes[id]
}

// Children returns the child nodes of the given node.
func (g *Graph) Children(n *Node) []*Node {
	children := make([]*Node, 0, len(n.Children))
	for _, cid := range n.Children {
		if c := g.Nodes[cid]; c != nil {
			children = append(children, c)
		}
	}
	return children
}

// NodeCount returns the total number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.Nodes)
}

// Builders returns every builder node in depth-first order from the roots,
// including nested ones.
func (g *Graph) Builders() []*Node {
	var out []*Node
	seen := map[NodeID]bool{}
	var walk func(n *Node)
	walk = func(n *Node) {
		if n == nil || seen[n.ID] {
			return
		}
		seen[n.ID] = true
		if n.Kind == NodeBuilder {
			out = append(out, n)
		}
		for _, c := range g.Children(n) {
			walk(c)
		}
	}
	for _, id := range g.Roots {
		walk(g.Nodes[id])
	}
	return out
}

// Output returns the target of the given builder: its first output child.
func (g *Graph) Output(builder NodeID) (*Output, error) {
	n := g.Nodes[builder]
	if n == nil || n.Kind != NodeBuilder {
		return nil, fmt.Errorf("scene: %q is not a builder", builder)
	}
	for _, c := range g.Children(n) {
		if d, ok := c.Data.(OutputData); ok && c.Kind == NodeOutput && d.Output != nil {
			return d.Output, nil
		}
	}
	return nil, fmt.Errorf("scene: builder %q has no output", builder)
}

// CollectShapes walks the builder's subtree and returns its visible
// primitives in depth-first order, each placed relative to the builder.
// Hidden subtrees and nested builders are skipped.
func (g *Graph) CollectShapes(builder NodeID) shape.List {
	root := g.Nodes[builder]
	if root == nil {
		return nil
	}
	var out shape.List
	var walk func(n *Node, parent shape.Transform)
	walk = func(n *Node, parent shape.Transform) {
		if !n.Visible || n.Kind == NodeBuilder || n.Kind == NodeOutput {
			return
		}
		local := n.Transform.Then(parent)
		if d, ok := n.Data.(PrimitiveData); ok {
			s := d.Shape
			s.Transform = local
			out = append(out, s)
		}
		for _, c := range g.Children(n) {
			walk(c, local)
		}
	}
	for _, c := range g.Children(root) {
		walk(c, shape.Identity())
	}
	return out
}

// Source adapts a builder node to build.Source. It keeps reading through
// g, so it follows Replace.
func (g *Graph) Source(builder NodeID) build.Source {
	return &builderSource{g: g, id: builder}
}

type builderSource struct {
	g  *Graph
	id NodeID
}

func (s *builderSource) Shapes() shape.List  { return s.g.CollectShapes(s.id) }
func (s *builderSource) Fingerprint() uint64 { return s.g.Fingerprint(s.id) }

// Replace swaps other's contents into g. Output nodes whose id already
// existed keep their Output, so targets held by builders stay attached.
// other must not be used afterwards.
func (g *Graph) Replace(other *Graph) {
	for id, n := range other.Nodes {
		if n.Kind != NodeOutput {
			continue
		}
		old := g.Nodes[id]
		if old == nil || old.Kind != NodeOutput {
			continue
		}
		if d, ok := old.Data.(OutputData); ok && d.Output != nil {
			n.Data = d
		}
	}
	g.Nodes = other.Nodes
	g.Roots = other.Roots
	g.NameIndex = other.NameIndex
	g.Version++
}
