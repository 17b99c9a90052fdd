package selection

import (
	"github.com/n9te9/federation-core/internal/value"
)

// methodCall bundles everything an arrow-method implementation needs: the
// receiver value, its raw (unevaluated) argument expressions, and enough of
// the surrounding evalCtx to evaluate those arguments itself (methods such as
// map() must re-evaluate their body once per element with @ rebound).
type methodCall struct {
	ec      *evalCtx
	current value.Value
	root    value.Value
	args    []*LitExpr
	path    value.Path
}

// arg evaluates argument i relative to the method's receiver as @.
func (m *methodCall) arg(i int) value.Value {
	if i >= len(m.args) {
		return value.Missing
	}
	return m.ec.evalLit(m.args[i], m.current, m.root, m.path)
}

// argAt evaluates argument i with an explicit @ binding, used by map().
func (m *methodCall) argAt(i int, at value.Value, path value.Path) value.Value {
	if i >= len(m.args) {
		return value.Missing
	}
	return m.ec.evalLit(m.args[i], at, m.root, path)
}

// methodFunc implements one arrow method. The bool return reports whether a
// value was produced; false means "no output, no error" (e.g. first/last on
// an empty array).
type methodFunc func(m *methodCall) (value.Value, bool)

// methodRegistry is the closed, exhaustive set of arrow methods required by
// Implementations are deliberately small and side-effect-free.
var methodRegistry = map[string]methodFunc{
	"first":         methodFirst,
	"last":          methodLast,
	"size":          methodSize,
	"slice":         methodSlice,
	"map":           methodMap,
	"entries":       methodEntries,
	"get":           methodGet,
	"typeof":        methodTypeof,
	"echo":          methodEcho,
	"add":           methodArith(func(a, b float64) float64 { return a + b }),
	"sub":           methodArith(func(a, b float64) float64 { return a - b }),
	"mul":           methodArith(func(a, b float64) float64 { return a * b }),
	"jsonStringify": methodJSONStringify,
}

func methodFirst(m *methodCall) (value.Value, bool) {
	arr, ok := m.current.Array()
	if !ok || len(arr) == 0 {
		return value.Value{}, false
	}
	return arr[0], true
}

func methodLast(m *methodCall) (value.Value, bool) {
	arr, ok := m.current.Array()
	if !ok || len(arr) == 0 {
		return value.Value{}, false
	}
	return arr[len(arr)-1], true
}

func methodSize(m *methodCall) (value.Value, bool) {
	switch m.current.Kind() {
	case value.KindArray:
		arr, _ := m.current.Array()
		return value.Int(int64(len(arr))), true
	case value.KindObject:
		obj, _ := m.current.Object()
		return value.Int(int64(obj.Len())), true
	case value.KindString:
		s, _ := m.current.String()
		return value.Int(int64(len(s))), true
	default:
		m.ec.errorf(m.path, "Method ->size not supported on %s", m.current.Kind())
		return value.Value{}, false
	}
}

// methodSlice implements slice(start, end?): clamped, half-open.
func methodSlice(m *methodCall) (value.Value, bool) {
	arr, ok := m.current.Array()
	if !ok {
		m.ec.errorf(m.path, "Method ->slice requires an array")
		return value.Value{}, false
	}
	n := len(arr)
	start := clampIndex(intArg(m, 0, 0), n)
	end := n
	if len(m.args) > 1 {
		end = clampIndex(intArg(m, 1, n), n)
	}
	if end < start {
		end = start
	}
	out := make([]value.Value, end-start)
	copy(out, arr[start:end])
	return value.Array(out), true
}

func clampIndex(i, n int) int {
	if i < 0 {
		i = n + i
	}
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

func intArg(m *methodCall, i, fallback int) int {
	v := m.arg(i)
	if f, ok := v.Number(); ok {
		return int(f)
	}
	return fallback
}

// methodMap implements map(body): applies body per element with @ rebound.
func methodMap(m *methodCall) (value.Value, bool) {
	arr, ok := m.current.Array()
	if !ok {
		m.ec.errorf(m.path, "Method ->map requires an array")
		return value.Value{}, false
	}
	if len(m.args) == 0 {
		return m.current, true
	}
	out := make([]value.Value, len(arr))
	for i, elem := range arr {
		out[i] = m.argAt(0, elem, m.path.Append(value.Index(i)))
	}
	return value.Array(out), true
}

func methodEntries(m *methodCall) (value.Value, bool) {
	obj, ok := m.current.Object()
	if !ok {
		m.ec.errorf(m.path, "Method ->entries requires an object")
		return value.Value{}, false
	}
	out := make([]value.Value, 0, obj.Len())
	obj.Range(func(k string, v value.Value) bool {
		entry := value.NewObject()
		entry.Set("key", value.String(k))
		entry.Set("value", v)
		out = append(out, value.Object(entry))
		return true
	})
	return value.Array(out), true
}

func methodGet(m *methodCall) (value.Value, bool) {
	obj, ok := m.current.Object()
	if !ok {
		m.ec.errorf(m.path, "Method ->get requires an object")
		return value.Value{}, false
	}
	fieldVal := m.arg(0)
	field, _ := fieldVal.String()
	v, found := obj.Get(field)
	if !found {
		return value.Value{}, false
	}
	return v, true
}

func methodTypeof(m *methodCall) (value.Value, bool) {
	return value.String(m.current.TypeofName()), true
}

func methodEcho(m *methodCall) (value.Value, bool) {
	return m.arg(0), true
}

func methodArith(op func(a, b float64) float64) methodFunc {
	return func(m *methodCall) (value.Value, bool) {
		a, aok := m.current.Number()
		if !aok {
			m.ec.errorf(m.path, "Method arithmetic requires a numeric receiver")
			return value.Value{}, false
		}
		result := a
		for i := range m.args {
			b, bok := m.arg(i).Number()
			if !bok {
				m.ec.errorf(m.path, "Method arithmetic requires numeric arguments")
				return value.Value{}, false
			}
			result = op(result, b)
		}
		return value.Float(result), true
	}
}

// methodJSONStringify renders the receiver as canonical JSON: object keys in
// insertion order.
func methodJSONStringify(m *methodCall) (value.Value, bool) {
	b, err := m.current.MarshalJSON()
	if err != nil {
		m.ec.errorf(m.path, "Method ->jsonStringify failed: %v", err)
		return value.Value{}, false
	}
	return value.String(string(b)), true
}
