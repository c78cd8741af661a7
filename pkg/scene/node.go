package scene

import (
	"github.com/chazu/islebake/pkg/shape"
	"github.com/google/uuid"
)

// NodeID identifies a node within a graph. Named nodes use their path;
// anonymous nodes get a random suffix.
type NodeID string

// NewNodeID returns path as an id, or a fresh anonymous id for kind when
// path is empty.
func NewNodeID(kind NodeKind, path string) NodeID {
	if path != "" {
		return NodeID(path)
	}
	return NodeID(kind.String() + "-" + uuid.NewString()[:8])
}

// NodeKind enumerates the types of nodes in a scene.
type NodeKind int

const (
	NodeGroup     NodeKind = iota // transform-only grouping
	NodePrimitive                 // one SDF primitive
	NodeBuilder                   // island root: collects the primitives below it
	NodeOutput                    // where a builder's artifacts land
)

func (k NodeKind) String() string {
	switch k {
	case NodeGroup:
		return "group"
	case NodePrimitive:
		return "primitive"
	case NodeBuilder:
		return "builder"
	case NodeOutput:
		return "output"
	default:
		return "unknown"
	}
}

// Node is the fundamental element of the scene. Transform is relative to
// the parent. A hidden node hides its whole subtree.
type Node struct {
	ID        NodeID          `json:"id"`
	Kind      NodeKind        `json:"kind"`
	Name      string          `json:"name,omitempty"`
	Transform shape.Transform `json:"transform"`
	Visible   bool            `json:"visible"`
	Children  []NodeID        `json:"children,omitempty"`
	Data      NodeData        `json:"data"`
}

// NodeData is the interface for kind-specific node payloads.
type NodeData interface {
	nodeData()
}

// PrimitiveData is one shape. Its own Transform is ignored; the node's
// transform places it.
type PrimitiveData struct {
	Shape shape.Shape `json:"shape"`
}

func (PrimitiveData) nodeData() {}

// GroupData carries nothing; a group only transforms its children.
type GroupData struct{}

func (GroupData) nodeData() {}

// BuilderData marks an island root.
type BuilderData struct {
	// Group registers the island with a bake group. Empty means "default".
	Group string `json:"group,omitempty"`
}

func (BuilderData) nodeData() {}

// OutputData holds the artifact target of the enclosing builder.
type OutputData struct {
	Output *Output `json:"-"`
}

func (OutputData) nodeData() {}

// NewGroup returns a visible group node.
func NewGroup(name string, t shape.Transform) *Node {
	return &Node{ID: NewNodeID(NodeGroup, name), Kind: NodeGroup, Name: name, Transform: t, Visible: true, Data: GroupData{}}
}

// NewPrimitive returns a visible primitive node placing s with t.
func NewPrimitive(name string, s shape.Shape, t shape.Transform) *Node {
	s.Transform = shape.Identity()
	return &Node{ID: NewNodeID(NodePrimitive, name), Kind: NodePrimitive, Name: name, Transform: t, Visible: true, Data: PrimitiveData{Shape: s}}
}

// NewBuilder returns a builder node in bake group group.
func NewBuilder(name, group string) *Node {
	return &Node{ID: NewNodeID(NodeBuilder, name), Kind: NodeBuilder, Name: name, Transform: shape.Identity(), Visible: true, Data: BuilderData{Group: group}}
}

// NewOutput returns an output node with an empty target.
func NewOutput(name string) *Node {
	return &Node{ID: NewNodeID(NodeOutput, name), Kind: NodeOutput, Name: name, Transform: shape.Identity(), Visible: true, Data: OutputData{Output: &Output{}}}
}
