package selection

import "fmt"

// Shape is the symbolic analogue of Apply's runtime result: it tracks
// inferred types without touching real data, for use by composition-time
// validators. It is never consulted by the
// runtime evaluator.
type Shape struct {
	Kind ShapeKind

	// Name is populated for ShapeName: a named reference like
	// "$root.books.4.isbn".
	Name string

	// Of holds member shapes for ShapeOneOf (a union of possibilities).
	Of []Shape

	// Array/Object shapes.
	Element *Shape
	Fields  map[string]Shape

	// Error records a shape-analysis failure (e.g. unknown variable).
	Error string
}

type ShapeKind int

const (
	ShapeUnknown ShapeKind = iota
	ShapeNull
	ShapeBool
	ShapeNumber
	ShapeString
	ShapeArray
	ShapeObject
	ShapeName
	ShapeOneOf
	ShapeError
)

// InputShape describes the shape of $ (and any named variables) supplied to
// Shape as the static counterpart of Apply's runtime bindings.
type InputShape struct {
	Root Shape
	Vars map[string]Shape
}

// ComputeShape runs the symbolic analogue of Apply(program, ...): instead of
// a JSON value it propagates Shape through the same recursion structure.
func ComputeShape(prog *Program, input InputShape) Shape {
	sc := &shapeCtx{vars: input.Vars}
	if prog.Named != nil {
		return sc.shapeSubSelection(prog.Named, input.Root, "$")
	}
	return sc.shapePath(prog.Path, input.Root, input.Root, "$")
}

type shapeCtx struct {
	vars map[string]Shape
}

func (sc *shapeCtx) shapeSubSelection(sub *SubSelection, input Shape, name string) Shape {
	if input.Kind == ShapeArray {
		elem := sc.shapeSubSelection(sub, derefElement(input), name+".*")
		return Shape{Kind: ShapeArray, Element: &elem}
	}

	fields := make(map[string]Shape)
	for _, sel := range sub.Selections {
		switch s := sel.(type) {
		case Field:
			fieldShape := fieldOf(input, s.Key, name)
			if s.Sub != nil {
				fieldShape = sc.shapeSubSelection(s.Sub, fieldShape, name+"."+s.Key)
			}
			fields[s.OutputName()] = fieldShape
		case PathSel:
			v := sc.shapePath(s.Path, input, input, name)
			if s.Inline {
				if v.Kind == ShapeObject {
					for k, fv := range v.Fields {
						fields[k] = fv
					}
				}
				continue
			}
			if s.Alias != "" {
				fields[s.Alias] = v
			}
		case Group:
			fields[s.Alias] = sc.shapeSubSelection(s.Sub, input, name+"."+s.Alias)
		}
	}
	return Shape{Kind: ShapeObject, Fields: fields}
}

func fieldOf(input Shape, key, name string) Shape {
	if input.Kind == ShapeObject {
		if f, ok := input.Fields[key]; ok {
			return f
		}
	}
	return Shape{Kind: ShapeName, Name: fmt.Sprintf("%s.%s", name, key)}
}

func derefElement(s Shape) Shape {
	if s.Element != nil {
		return *s.Element
	}
	return Shape{Kind: ShapeUnknown}
}

func (sc *shapeCtx) shapePath(ps *PathSelection, current, root Shape, name string) Shape {
	switch ps.Kind {
	case KindVar:
		switch ps.VarName {
		case "$":
			return sc.shapePath(ps.Tail, root, root, "$")
		case "@":
			return sc.shapePath(ps.Tail, current, root, name)
		default:
			v, ok := sc.vars[ps.VarName[1:]]
			if !ok {
				return Shape{Kind: ShapeError, Error: fmt.Sprintf("variable %s not found", ps.VarName)}
			}
			return sc.shapePath(ps.Tail, v, root, ps.VarName)
		}
	case KindKey:
		next := fieldOf(current, ps.KeyName, name)
		return sc.shapePath(ps.Tail, next, root, name+"."+ps.KeyName)
	case KindExpr:
		return sc.shapePath(ps.Tail, Shape{Kind: ShapeUnknown}, root, name)
	case KindMethod:
		return sc.shapePath(ps.Tail, Shape{Kind: ShapeUnknown}, root, name+"->"+ps.MethodName)
	case KindSelection:
		return sc.shapePath(ps.Tail, sc.shapeSubSelection(ps.Sub, current, name), root, name)
	case KindQuestion:
		inner := sc.shapePath(ps.Tail, current, root, name)
		return Shape{Kind: ShapeOneOf, Of: []Shape{{Kind: ShapeNull}, inner}}
	case KindEmpty:
		return current
	}
	return Shape{Kind: ShapeUnknown}
}
