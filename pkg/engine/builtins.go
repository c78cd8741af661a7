package engine

import (
	"fmt"
	"strings"

	"github.com/chazu/islebake/pkg/scene"
	"github.com/chazu/islebake/pkg/shape"
	v3 "github.com/deadsy/sdfx/vec/v3"
	zygo "github.com/glycerine/zygomys/zygo"
)

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpNodeRef wraps a scene.NodeID so it can be passed between builtins.
type sexpNodeRef struct {
	id   scene.NodeID
	name string // human-readable name for error messages
}

func (n *sexpNodeRef) SexpString(ps *zygo.PrintState) string {
	if n.name != "" {
		return fmt.Sprintf("(node %q)", n.name)
	}
	return fmt.Sprintf("(node %s)", n.id)
}
func (n *sexpNodeRef) Type() *zygo.RegisteredType { return nil }

// sexpVec3 wraps a v3.Vec.
type sexpVec3 struct {
	vec v3.Vec
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// isKW checks if a Sexp is a preprocessed keyword string and returns its
// name without the prefix.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			continue
		}
		if i+1 < len(args) {
			result.kw[name] = args[i+1]
			i++
		} else {
			result.kw[name] = zygo.SexpNull
		}
	}
	return result
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
// Handles both preprocessed keywords (__kw_z) and plain strings ("z").
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	return strings.TrimPrefix(str.S, kwPrefix), nil
}

func toBool(s zygo.Sexp) (bool, error) {
	if b, ok := s.(*zygo.SexpBool); ok {
		return b.Val, nil
	}
	return false, fmt.Errorf("expected true or false, got %T (%s)", s, s.SexpString(nil))
}

// toVec3 accepts a vec3 or a single number, which is splatted.
func toVec3(s zygo.Sexp) (v3.Vec, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	if f, err := toFloat64(s); err == nil {
		return v3.Vec{X: f, Y: f, Z: f}, nil
	}
	return v3.Vec{}, fmt.Errorf("expected vec3 or number, got %T (%s)", s, s.SexpString(nil))
}

func toNodeRef(s zygo.Sexp) (*sexpNodeRef, error) {
	if ref, ok := s.(*sexpNodeRef); ok {
		return ref, nil
	}
	return nil, fmt.Errorf("expected node, got %T (%s)", s, s.SexpString(nil))
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// toChildren flattens node references and lists of them.
func toChildren(args []zygo.Sexp) ([]*sexpNodeRef, error) {
	var out []*sexpNodeRef
	for i, a := range args {
		if ref, ok := a.(*sexpNodeRef); ok {
			out = append(out, ref)
			continue
		}
		items, err := sexpListToSlice(a)
		if err != nil {
			return nil, fmt.Errorf("child %d: expected node or list of nodes, got %T (%s)", i, a, a.SexpString(nil))
		}
		nested, err := toChildren(items)
		if err != nil {
			return nil, fmt.Errorf("child %d: %w", i, err)
		}
		out = append(out, nested...)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Shared options
// ---------------------------------------------------------------------------

// applyTransform reads :at, :rotate (Euler degrees) and :scale into t.
func applyTransform(pa kwArgs, t *shape.Transform) error {
	if v, ok := pa.kw["at"]; ok {
		vec, err := toVec3(v)
		if err != nil {
			return fmt.Errorf("at: %w", err)
		}
		t.Position = vec
	}
	if v, ok := pa.kw["rotate"]; ok {
		vec, err := toVec3(v)
		if err != nil {
			return fmt.Errorf("rotate: %w", err)
		}
		t.Rotation = shape.Euler(vec.X, vec.Y, vec.Z)
	}
	if v, ok := pa.kw["scale"]; ok {
		vec, err := toVec3(v)
		if err != nil {
			return fmt.Errorf("scale: %w", err)
		}
		if vec.X == 0 || vec.Y == 0 || vec.Z == 0 {
			return fmt.Errorf("scale: components must be non-zero")
		}
		t.Scale = vec
	}
	return nil
}

// applyShapeOptions reads :op, :edge and :hull-weight into s.
func applyShapeOptions(pa kwArgs, s *shape.Shape) error {
	if v, ok := pa.kw["op"]; ok {
		name, err := toKeywordString(v)
		if err != nil {
			return fmt.Errorf("op: %w", err)
		}
		op, err := shape.ParseOperation(name)
		if err != nil {
			return fmt.Errorf("op: %w", err)
		}
		s.Operation = op
	}
	if v, ok := pa.kw["edge"]; ok {
		f, err := toFloat64(v)
		if err != nil {
			return fmt.Errorf("edge: %w", err)
		}
		s.EdgeRadius = f
	}
	if v, ok := pa.kw["hull-weight"]; ok {
		f, err := toFloat64(v)
		if err != nil {
			return fmt.Errorf("hull-weight: %w", err)
		}
		s.HullWeight = f
	}
	return nil
}

// applyNodeOptions reads :name and :visible.
func applyNodeOptions(pa kwArgs, name *string, visible *bool) error {
	if v, ok := pa.kw["name"]; ok {
		s, err := toString(v)
		if err != nil {
			return fmt.Errorf("name: %w", err)
		}
		*name = s
	}
	if v, ok := pa.kw["visible"]; ok {
		b, err := toBool(v)
		if err != nil {
			return fmt.Errorf("visible: %w", err)
		}
		*visible = b
	}
	return nil
}

// positionalFloats reads up to len(dst) leading numbers, leaving the rest
// of dst at their defaults.
func positionalFloats(args []zygo.Sexp, dst ...*float64) error {
	if len(args) > len(dst) {
		return fmt.Errorf("expected at most %d positional arguments, got %d", len(dst), len(args))
	}
	for i, a := range args {
		f, err := toFloat64(a)
		if err != nil {
			return fmt.Errorf("argument %d: %w", i+1, err)
		}
		*dst[i] = f
	}
	return nil
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// sceneBuilder accumulates nodes while a script runs.
type sceneBuilder struct {
	g      *scene.Graph
	parent map[scene.NodeID]scene.NodeID
}

// adopt makes children belong to parent. A node can only be placed once.
func (sb *sceneBuilder) adopt(parent *scene.Node, children []*sexpNodeRef) error {
	for _, c := range children {
		if c.id == parent.ID {
			return fmt.Errorf("%s cannot contain itself", c.SexpString(nil))
		}
		if p, ok := sb.parent[c.id]; ok {
			return fmt.Errorf("%s is already inside %s", c.SexpString(nil), p)
		}
		if n := sb.g.Get(c.id); n != nil && n.Kind == scene.NodeBuilder {
			// Islands are roots unless nested; a nested island stays separate.
			sb.g.Roots = removeID(sb.g.Roots, c.id)
		}
		sb.parent[c.id] = parent.ID
		parent.Children = append(parent.Children, c.id)
	}
	return nil
}

func (sb *sceneBuilder) add(n *scene.Node) (*sexpNodeRef, error) {
	if n.Name != "" && sb.g.Lookup(n.Name) != nil {
		return nil, fmt.Errorf("name %q already used", n.Name)
	}
	sb.g.AddNode(n)
	return &sexpNodeRef{id: n.ID, name: n.Name}, nil
}

func removeID(ids []scene.NodeID, id scene.NodeID) []scene.NodeID {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

// primitive registers a shape builtin. dims binds the positional numbers.
func (sb *sceneBuilder) primitive(env *zygo.Zlisp, fn string, kind shape.Kind, dims func(s *shape.Shape) []*float64) {
	env.AddFunction(fn, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		s := shape.New(kind, shape.Union)

		// (box (vec3 2 1 3)) is accepted alongside (box 2 1 3).
		if kind == shape.Box && len(pa.positional) == 1 {
			if v, ok := pa.positional[0].(*sexpVec3); ok {
				s.Size = v.vec
				pa.positional = nil
			}
		}
		if err := positionalFloats(pa.positional, dims(&s)...); err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: %w", fn, err)
		}
		if kind == shape.Box && len(pa.positional) == 1 {
			s.Size.Y, s.Size.Z = s.Size.X, s.Size.X
		}
		if err := applyShapeOptions(pa, &s); err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: %w", fn, err)
		}

		t := shape.Identity()
		if err := applyTransform(pa, &t); err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: %w", fn, err)
		}
		var nodeName string
		visible := true
		if err := applyNodeOptions(pa, &nodeName, &visible); err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: %w", fn, err)
		}
		n := scene.NewPrimitive(nodeName, s, t)
		n.Visible = visible
		ref, err := sb.add(n)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: %w", fn, err)
		}
		return ref, nil
	})
}

// registerBuiltins installs the scene DSL into a zygomys environment. The
// builtins populate g during evaluation.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
//
// Every primitive accepts :op (:union, :intersect, :subtract), :edge,
// :hull-weight, :at, :rotate, :scale, :name and :visible.
func registerBuiltins(env *zygo.Zlisp, g *scene.Graph) {
	sb := &sceneBuilder{g: g, parent: map[scene.NodeID]scene.NodeID{}}

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}
		var v v3.Vec
		if err := positionalFloats(args, &v.X, &v.Y, &v.Z); err != nil {
			return zygo.SexpNull, fmt.Errorf("vec3: %w", err)
		}
		return &sexpVec3{vec: v}, nil
	})

	// (box 2 1 3), (box 2), (box (vec3 2 1 3))
	sb.primitive(env, "box", shape.Box, func(s *shape.Shape) []*float64 {
		return []*float64{&s.Size.X, &s.Size.Y, &s.Size.Z}
	})
	// (sphere 1.5)
	sb.primitive(env, "sphere", shape.Sphere, func(s *shape.Shape) []*float64 {
		return []*float64{&s.Radius}
	})
	// (cylinder radius height)
	sb.primitive(env, "cylinder", shape.Cylinder, func(s *shape.Shape) []*float64 {
		return []*float64{&s.Radius, &s.Height}
	})
	// (torus major minor)
	sb.primitive(env, "torus", shape.Torus, func(s *shape.Shape) []*float64 {
		return []*float64{&s.Radius, &s.Ring}
	})

	// -----------------------------------------------------------------------
	// (group "name"? child... :at (vec3 0 1 0) :rotate (vec3 0 45 0))
	// (place child :at (vec3 0 0 2))
	// -----------------------------------------------------------------------
	group := func(fn string) zygo.ZlispUserFunction {
		return func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			pa := parseArgs(args)
			var groupName string
			rest := pa.positional
			if len(rest) > 0 {
				if s, ok := rest[0].(*zygo.SexpStr); ok {
					groupName = s.S
					rest = rest[1:]
				}
			}
			children, err := toChildren(rest)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", fn, err)
			}
			if fn == "place" && len(children) != 1 {
				return zygo.SexpNull, fmt.Errorf("place requires exactly one node, got %d", len(children))
			}
			t := shape.Identity()
			if err := applyTransform(pa, &t); err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", fn, err)
			}
			visible := true
			if err := applyNodeOptions(pa, &groupName, &visible); err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", fn, err)
			}
			n := scene.NewGroup(groupName, t)
			n.Visible = visible
			if err := sb.adopt(n, children); err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", fn, err)
			}
			ref, err := sb.add(n)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", fn, err)
			}
			return ref, nil
		}
	}
	env.AddFunction("group", group("group"))
	env.AddFunction("place", group("place"))

	// -----------------------------------------------------------------------
	// (hide node) hides a node and everything under it.
	// -----------------------------------------------------------------------
	env.AddFunction("hide", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("hide requires exactly one node")
		}
		ref, err := toNodeRef(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("hide: %w", err)
		}
		if n := g.Get(ref.id); n != nil {
			n.Visible = false
		}
		return ref, nil
	})

	// -----------------------------------------------------------------------
	// (island "name" child... :group "west")
	// -----------------------------------------------------------------------
	env.AddFunction("island", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) < 1 {
			return zygo.SexpNull, fmt.Errorf("island requires a name argument")
		}
		islandName, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("island: name: %w", err)
		}
		if islandName == "" {
			return zygo.SexpNull, fmt.Errorf("island: name must not be empty")
		}
		var bakeGroup string
		if v, ok := pa.kw["group"]; ok {
			if bakeGroup, err = toKeywordString(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("island: group: %w", err)
			}
		}
		children, err := toChildren(pa.positional[1:])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("island: %w", err)
		}

		n := scene.NewBuilder(islandName, bakeGroup)
		if err := applyTransform(pa, &n.Transform); err != nil {
			return zygo.SexpNull, fmt.Errorf("island: %w", err)
		}
		ref, err := sb.add(n)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("island: %w", err)
		}
		out := scene.NewOutput(islandName + "/output")
		outRef, err := sb.add(out)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("island: %w", err)
		}
		if err := sb.adopt(n, append([]*sexpNodeRef{outRef}, children...)); err != nil {
			return zygo.SexpNull, fmt.Errorf("island: %w", err)
		}
		g.AddRoot(n.ID)
		return ref, nil
	})
}
