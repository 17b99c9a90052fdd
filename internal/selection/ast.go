// Package selection implements the compiled path-and-shape selection
// language: parsing source text into an immutable Program, applying a
// Program to a JSON value (Apply), and the symbolic Shape analysis used by
// composition-time validators.
package selection

// SourceRange is an optional half-open byte range into the text that produced
// a selection program, used solely for diagnostics.
type SourceRange struct {
	Start, End int
}

// Program is the compiled, shareable output of the parser: the root of a
// selection program is either a bare sub-selection or a single path.
type Program struct {
	Named *SubSelection
	Path  *PathSelection

	// Source is the original text, retained for SourceRange rendering.
	Source string
}

// SubSelection is an ordered list of NamedSelection entries. Order is
// preserved because merged-object key order depends on it.
type SubSelection struct {
	Selections []NamedSelection
	Range      SourceRange
}

// NamedSelection is one of Field, PathSel, or Group.
type NamedSelection interface {
	namedSelection()
	SourceRange() SourceRange
}

// Field renames Key (or Alias) from the current mapping, recursively
// applying Sub if present.
type Field struct {
	Alias string // empty if no explicit alias
	Key   string
	Sub   *SubSelection // nil if this is a leaf field
	Range SourceRange
}

func (Field) namedSelection()            {}
func (f Field) SourceRange() SourceRange { return f.Range }

// OutputName is the key this selection contributes to the enclosing object.
func (f Field) OutputName() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Key
}

// PathSel evaluates Path against the current value, emitting under Alias or
// inlining the object members when Inline is set.
type PathSel struct {
	Alias  string // empty if Inline or no alias was given
	Path   *PathSelection
	Inline bool
	Range  SourceRange
}

func (PathSel) namedSelection()            {}
func (p PathSel) SourceRange() SourceRange { return p.Range }

// Group nests Sub under Alias.
type Group struct {
	Alias string
	Sub   *SubSelection
	Range SourceRange
}

func (Group) namedSelection()            {}
func (g Group) SourceRange() SourceRange { return g.Range }

// PathSelection is a recursive step chain. Exactly one of the typed fields
// below is populated, discriminated by Kind.
type PathSelection struct {
	Kind PathKind
	Range SourceRange

	// Var
	VarName string
	// Key
	KeyName string
	// Expr
	Literal *LitExpr
	// Method
	MethodName string
	MethodArgs []*LitExpr
	// Selection
	Sub *SubSelection
	// Question / any step with a continuation
	Tail *PathSelection
}

type PathKind int

const (
	KindVar PathKind = iota
	KindKey
	KindExpr
	KindMethod
	KindSelection
	KindQuestion
	KindEmpty
)

// LitExpr mirrors JSON literals plus Path and LitPath (chained application).
type LitExpr struct {
	Kind LitKind

	Null   bool
	Bool   bool
	Int    int64
	Float  float64
	IsFloat bool
	Str    string
	Arr    []*LitExpr
	ObjKeys []string
	ObjVals []*LitExpr

	// Path / LitPath: for LitPathRef, Path is evaluated directly; for
	// LitPathExpr, Path already wraps the literal atom as a KindExpr node
	// whose Tail is the chained continuation, so evaluation is uniform.
	Path *PathSelection
}

type LitKind int

const (
	LitNull LitKind = iota
	LitBool
	LitNumber
	LitString
	LitArray
	LitObject
	LitPathRef  // bare Path reference
	LitPathExpr // literal value followed by a chained sub-path (LitPath)
)
