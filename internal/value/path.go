package value

import "strconv"

// PathElement is one segment of a Path: either an object key or an array index.
type PathElement struct {
	key     string
	index   int
	isIndex bool
}

func Key(k string) PathElement  { return PathElement{key: k} }
func Index(i int) PathElement   { return PathElement{index: i, isIndex: true} }

func (e PathElement) IsIndex() bool { return e.isIndex }
func (e PathElement) Key() string   { return e.key }
func (e PathElement) Index() int    { return e.index }

func (e PathElement) String() string {
	if e.isIndex {
		return strconv.Itoa(e.index)
	}
	return e.key
}

// Path is an ordered sequence of PathElement. The empty Path denotes the root.
type Path []PathElement

// Append returns a new Path with e appended, leaving the receiver untouched
// (paths are threaded through recursive evaluation and must not alias).
func (p Path) Append(e PathElement) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = e
	return out
}

func (p Path) String() string {
	s := ""
	for i, e := range p {
		if e.isIndex {
			s += "[" + strconv.Itoa(e.index) + "]"
		} else {
			if i > 0 {
				s += "."
			}
			s += e.key
		}
	}
	return s
}

// Equal reports whether two paths address the same position.
func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// AsInterfaceSlice renders the path the way GraphQL error "path" arrays are
// serialized on the wire: strings for keys, ints for indices.
func (p Path) AsInterfaceSlice() []interface{} {
	out := make([]interface{}, len(p))
	for i, e := range p {
		if e.isIndex {
			out[i] = e.index
		} else {
			out[i] = e.key
		}
	}
	return out
}
