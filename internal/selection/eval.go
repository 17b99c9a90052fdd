package selection

import (
	"fmt"
	"strings"

	"github.com/n9te9/federation-core/internal/value"
)

// Apply applies a compiled Program to a JSON value, producing a transformed
// value (Missing meaning "no output at this position") plus an accumulated,
// deduplicated error list.
//
// vars holds caller-supplied named variables, keyed without their leading
// "$" (so a program referencing "$userId" looks up vars["userId"]).
func Apply(prog *Program, data value.Value, vars map[string]value.Value) (value.Value, []Error) {
	ec := &evalCtx{vars: vars, sink: newErrorSink()}
	var result value.Value
	if prog.Named != nil {
		result = ec.evalSubSelection(prog.Named, data, nil)
	} else {
		result = ec.evalPath(prog.Path, data, data, nil)
	}
	return result, ec.sink.list()
}

// evalCtx threads the caller's named variables and the error sink through
// the recursion rather than growing a return value at every frame.
type evalCtx struct {
	vars map[string]value.Value
	sink *errorSink
}

func (ec *evalCtx) errorf(path value.Path, format string, args ...interface{}) {
	ec.sink.add(Error{Message: fmt.Sprintf(format, args...), Path: path})
}

// evalSubSelection applies sub to input: objects/null set $ to input and
// evaluate each NamedSelection; arrays map elementwise, rebinding $ per
// element.
func (ec *evalCtx) evalSubSelection(sub *SubSelection, input value.Value, path value.Path) value.Value {
	if arr, ok := input.Array(); ok {
		out := make([]value.Value, len(arr))
		for i, elem := range arr {
			out[i] = ec.evalSubSelection(sub, elem, path.Append(value.Index(i)))
		}
		return value.Array(out)
	}

	if input.IsNull() {
		return value.Null
	}

	obj := value.NewObject()
	for _, sel := range sub.Selections {
		switch s := sel.(type) {
		case Field:
			v, found := ec.lookupProperty(input, s.Key, path)
			if !found {
				continue
			}
			if s.Sub != nil {
				v = ec.evalSubSelection(s.Sub, v, path.Append(value.Key(s.OutputName())))
			}
			obj.Set(s.OutputName(), v)

		case PathSel:
			v := ec.evalPath(s.Path, input, input, path)
			if v.IsMissing() {
				continue
			}
			if s.Inline {
				if v.IsNull() {
					return value.Null
				}
				if o, ok := v.Object(); ok {
					obj.Merge(o)
				} else {
					ec.errorf(path, "inline path selection must resolve to an object or null")
				}
				continue
			}
			if s.Alias == "" {
				continue
			}
			obj.Set(s.Alias, v)

		case Group:
			v := ec.evalSubSelection(s.Sub, input, path.Append(value.Key(s.Alias)))
			obj.Set(s.Alias, v)
		}
	}

	// Scalar pass-through: a scalar input with no matching selections
	// returns unchanged so arrow-method results compose with field
	// selections.
	if obj.Len() == 0 {
		switch input.Kind() {
		case value.KindObject:
			return value.Object(obj)
		default:
			return input
		}
	}

	return value.Object(obj)
}

// lookupProperty implements the missing-field rule shared by named Field
// selections and Key path steps: a hit returns (value, true); a miss records
// the "Property ... not found in ..." diagnostic and returns (Missing, false).
func (ec *evalCtx) lookupProperty(current value.Value, key string, path value.Path) (value.Value, bool) {
	if obj, ok := current.Object(); ok {
		if v, ok := obj.Get(key); ok {
			return v, true
		}
		ec.errorf(path.Append(value.Key(key)), "Property .%s not found in object", key)
		return value.Missing, false
	}
	ec.errorf(path.Append(value.Key(key)), "Property .%s not found in %s", key, current.Kind())
	return value.Missing, false
}

// evalPath evaluates one PathSelection node, dispatching on its Kind and
// recursing into Tail with the result as the new "current" binding.
func (ec *evalCtx) evalPath(ps *PathSelection, current, root value.Value, path value.Path) value.Value {
	switch ps.Kind {
	case KindVar:
		switch ps.VarName {
		case "$":
			return ec.evalPath(ps.Tail, root, root, path)
		case "@":
			return ec.evalPath(ps.Tail, current, root, path)
		default:
			name := strings.TrimPrefix(ps.VarName, "$")
			v, ok := ec.vars[name]
			if !ok {
				ec.errorf(path, "variable %s not found", ps.VarName)
				return value.Missing
			}
			return ec.evalPath(ps.Tail, v, root, path)
		}

	case KindKey:
		return ec.evalKeyStep(ps, current, root, path)

	case KindExpr:
		v := ec.evalLit(ps.Literal, current, root, path)
		return ec.evalPath(ps.Tail, v, root, path)

	case KindMethod:
		return ec.evalMethodStep(ps, current, root, path)

	case KindSelection:
		v := ec.evalSubSelection(ps.Sub, current, path)
		return ec.evalPath(ps.Tail, v, root, path)

	case KindQuestion:
		if current.IsNull() {
			return value.Null
		}
		before := len(ec.sink.errs)
		v := ec.evalPath(ps.Tail, current, root, path)
		ec.sink.rewritePrefix(before, "Method ->", "Method ?->")
		return v

	case KindEmpty:
		return current
	}
	return value.Missing
}

// evalKeyStep implements property lookup, including the array-mapping rule:
// applied to a sequence, the key lookup runs on every element and Tail runs
// once on the resulting array.
func (ec *evalCtx) evalKeyStep(ps *PathSelection, current, root value.Value, path value.Path) value.Value {
	if arr, ok := current.Array(); ok {
		out := make([]value.Value, len(arr))
		for i, elem := range arr {
			elemPath := path.Append(value.Index(i))
			if elem.IsNull() {
				out[i] = value.Null
				continue
			}
			v, found := ec.lookupProperty(elem, ps.KeyName, elemPath)
			if !found {
				out[i] = value.Null
				continue
			}
			out[i] = v
		}
		return ec.evalPath(ps.Tail, value.Array(out), root, path)
	}

	if current.IsNull() {
		ec.errorf(path.Append(value.Key(ps.KeyName)), "Property .%s not found in null", ps.KeyName)
		return value.Missing
	}

	v, found := ec.lookupProperty(current, ps.KeyName, path)
	if !found {
		return value.Missing
	}
	return ec.evalPath(ps.Tail, v, root, path)
}

func (ec *evalCtx) evalMethodStep(ps *PathSelection, current, root value.Value, path value.Path) value.Value {
	fn, ok := methodRegistry[ps.MethodName]
	if !ok {
		ec.errorf(path, "Method ->%s not found", ps.MethodName)
		return value.Missing
	}

	mc := &methodCall{ec: ec, current: current, root: root, args: ps.MethodArgs, path: path}
	v, produced := fn(mc)
	if !produced {
		return value.Missing
	}
	return ec.evalPath(ps.Tail, v, root, path)
}

func (ec *evalCtx) evalLit(lit *LitExpr, current, root value.Value, path value.Path) value.Value {
	switch lit.Kind {
	case LitNull:
		return value.Null
	case LitBool:
		return value.Bool(lit.Bool)
	case LitNumber:
		if lit.IsFloat {
			return value.Float(lit.Float)
		}
		return value.Int(lit.Int)
	case LitString:
		return value.String(lit.Str)
	case LitArray:
		out := make([]value.Value, len(lit.Arr))
		for i, el := range lit.Arr {
			out[i] = ec.evalLit(el, current, root, path)
		}
		return value.Array(out)
	case LitObject:
		o := value.NewObject()
		for i, k := range lit.ObjKeys {
			o.Set(k, ec.evalLit(lit.ObjVals[i], current, root, path))
		}
		return value.Object(o)
	case LitPathRef, LitPathExpr:
		return ec.evalPath(lit.Path, current, root, path)
	}
	return value.Missing
}
