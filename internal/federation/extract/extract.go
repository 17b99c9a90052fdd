// Package extract reconstructs a single subgraph's schema from a composed
// supergraph document by reading back the @join__* directives that
// federation/graph's composer writes when it merges subgraphs together.
// Where the composer walks N schemas into one, Extract walks one schema back
// into N views of it: a dual of SuperGraphV2.NewSuperGraphV2.
package extract

import (
	"fmt"
	"sort"
	"strings"

	"github.com/n9te9/graphql-parser/ast"
)

// GraphName is a subgraph identifier as it appears in a join__Graph enum
// value (e.g. "PRODUCTS", conventionally upper-snake-case).
type GraphName string

// Result is one subgraph's schema, reconstructed from the supergraph.
type Result struct {
	Graph  GraphName
	Schema *ast.Document
}

// Graphs lists every join__Graph enum value declared in the supergraph, in
// declaration order.
func Graphs(doc *ast.Document) []GraphName {
	var names []GraphName
	for _, def := range doc.Definitions {
		enumDef, ok := def.(*ast.EnumTypeDefinition)
		if !ok || enumDef.Name.String() != "join__Graph" {
			continue
		}
		for _, v := range enumDef.Values {
			names = append(names, GraphName(v.Value.String()))
		}
	}
	return names
}

// Extract reconstructs every subgraph named by the supergraph's join__Graph
// enum. The returned slice is sorted by GraphName for deterministic output.
func Extract(doc *ast.Document) ([]Result, error) {
	graphs := Graphs(doc)
	if len(graphs) == 0 {
		return nil, fmt.Errorf("extract: supergraph has no join__Graph enum values")
	}

	results := make([]Result, 0, len(graphs))
	for _, g := range graphs {
		schema, err := ExtractOne(doc, g)
		if err != nil {
			return nil, fmt.Errorf("extract: graph %s: %w", g, err)
		}
		results = append(results, Result{Graph: g, Schema: schema})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Graph < results[j].Graph })
	return results, nil
}

// ExtractOne reconstructs a single subgraph's schema by keeping only the
// type/field shapes that graph owns according to @join__type/@join__field,
// then pruning anything left dangling.
func ExtractOne(doc *ast.Document, graph GraphName) (*ast.Document, error) {
	out := &ast.Document{Definitions: make([]ast.Definition, 0, len(doc.Definitions))}

	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.ObjectTypeDefinition:
			if nd := extractObject(d, graph); nd != nil {
				out.Definitions = append(out.Definitions, nd)
			}
		case *ast.InterfaceTypeDefinition:
			if nd := extractInterface(d, graph); nd != nil {
				out.Definitions = append(out.Definitions, nd)
			}
		case *ast.InputObjectTypeDefinition:
			if nd := extractInput(d, graph); nd != nil {
				out.Definitions = append(out.Definitions, nd)
			}
		case *ast.EnumTypeDefinition:
			if nd := extractEnum(d, graph); nd != nil {
				out.Definitions = append(out.Definitions, nd)
			}
		case *ast.UnionTypeDefinition:
			if nd := extractUnion(d, graph); nd != nil {
				out.Definitions = append(out.Definitions, nd)
			}
		case *ast.ScalarTypeDefinition:
			if ownsType(d.Directives, graph, true) {
				out.Definitions = append(out.Definitions, &ast.ScalarTypeDefinition{
					Name:       d.Name,
					Directives: stripJoinDirectives(d.Directives),
				})
			}
		case *ast.DirectiveDefinition:
			if !isJoinOrLinkDirectiveDef(d) {
				out.Definitions = append(out.Definitions, d)
			}
		}
	}

	pruneDeadTypes(out)
	addEntityOperations(out, doc, graph)

	return out, nil
}

// ownsType reports whether graph is named in at least one @join__type
// directive on this definition. When the definition carries no join__type
// directive at all (pre-federation types, e.g. scalars defined once), it is
// owned by every graph if defaultAll is true — composition only annotates
// multi-graph types, so an absent directive means "every graph has this".
func ownsType(directives []*ast.Directive, graph GraphName, defaultAll bool) bool {
	found := false
	for _, d := range directives {
		if d.Name != "join__type" {
			continue
		}
		found = true
		if directiveGraph(d) == graph {
			return true
		}
	}
	if !found {
		return defaultAll
	}
	return false
}

// directiveGraph reads the "graph" argument of a @join__type/@join__field
// directive.
func directiveGraph(d *ast.Directive) GraphName {
	for _, arg := range d.Arguments {
		if arg.Name.String() == "graph" {
			return GraphName(strings.Trim(arg.Value.String(), "\""))
		}
	}
	return ""
}

// joinTypeKey reads the "key" field-set argument of a @join__type directive
// for the given graph, if present.
func joinTypeKey(directives []*ast.Directive, graph GraphName) (string, bool) {
	for _, d := range directives {
		if d.Name != "join__type" || directiveGraph(d) != graph {
			continue
		}
		for _, arg := range d.Arguments {
			if arg.Name.String() == "key" {
				return strings.Trim(arg.Value.String(), "\""), true
			}
		}
	}
	return "", false
}

func extractObject(d *ast.ObjectTypeDefinition, graph GraphName) *ast.ObjectTypeDefinition {
	if !ownsType(d.Directives, graph, true) {
		return nil
	}

	fields := extractFields(d.Fields, graph)
	nd := &ast.ObjectTypeDefinition{
		Name:       d.Name,
		Interfaces: d.Interfaces,
		Fields:     fields,
		Directives: rebuildKeyDirectives(d.Directives, graph),
	}
	return nd
}

func extractInterface(d *ast.InterfaceTypeDefinition, graph GraphName) *ast.InterfaceTypeDefinition {
	if !ownsType(d.Directives, graph, true) {
		return nil
	}
	return &ast.InterfaceTypeDefinition{
		Name:       d.Name,
		Fields:     extractFields(d.Fields, graph),
		Directives: rebuildKeyDirectives(d.Directives, graph),
	}
}

func extractInput(d *ast.InputObjectTypeDefinition, graph GraphName) *ast.InputObjectTypeDefinition {
	if !ownsType(d.Directives, graph, true) {
		return nil
	}
	return &ast.InputObjectTypeDefinition{
		Name:       d.Name,
		Fields:     d.Fields,
		Directives: stripJoinDirectives(d.Directives),
	}
}

func extractEnum(d *ast.EnumTypeDefinition, graph GraphName) *ast.EnumTypeDefinition {
	if d.Name.String() == "join__Graph" {
		return nil
	}
	if !ownsType(d.Directives, graph, true) {
		return nil
	}

	values := make([]*ast.EnumValueDefinition, 0, len(d.Values))
	for _, v := range d.Values {
		if ownsEnumValue(v.Directives, graph) {
			values = append(values, &ast.EnumValueDefinition{
				Value:      v.Value,
				Directives: stripJoinDirectives(v.Directives),
			})
		}
	}
	if len(values) == 0 {
		return nil
	}
	return &ast.EnumTypeDefinition{
		Name:       d.Name,
		Values:     values,
		Directives: stripJoinDirectives(d.Directives),
	}
}

// ownsEnumValue mirrors ownsType for @join__enumValue, which (unlike
// join__type) is never repeated per-graph on a value that belongs to all
// graphs, so an absent directive always means "every graph".
func ownsEnumValue(directives []*ast.Directive, graph GraphName) bool {
	found := false
	for _, d := range directives {
		if d.Name != "join__enumValue" {
			continue
		}
		found = true
		if directiveGraph(d) == graph {
			return true
		}
	}
	return !found
}

func extractUnion(d *ast.UnionTypeDefinition, graph GraphName) *ast.UnionTypeDefinition {
	if !ownsType(d.Directives, graph, true) {
		return nil
	}

	members := make([]ast.Type, 0, len(d.Types))
	for _, t := range d.Types {
		if ownsUnionMember(d.Directives, graph, t.String()) {
			members = append(members, t)
		}
	}
	if len(members) == 0 {
		return nil
	}
	return &ast.UnionTypeDefinition{
		Name:       d.Name,
		Types:      members,
		Directives: stripJoinDirectives(d.Directives),
	}
}

func ownsUnionMember(directives []*ast.Directive, graph GraphName, member string) bool {
	found := false
	for _, d := range directives {
		if d.Name != "join__unionMember" {
			continue
		}
		var m string
		for _, arg := range d.Arguments {
			if arg.Name.String() == "member" {
				m = strings.Trim(arg.Value.String(), "\"")
			}
		}
		if m != member {
			continue
		}
		found = true
		if directiveGraph(d) == graph {
			return true
		}
	}
	if !found {
		return true
	}
	return false
}

// extractFields keeps only fields this graph can resolve, per @join__field,
// defaulting to "every graph has it" when a field carries no join__field
// directive at all (composition only annotates fields that differ between
// graphs; a field present identically everywhere gets no annotation).
func extractFields(fields []*ast.FieldDefinition, graph GraphName) []*ast.FieldDefinition {
	out := make([]*ast.FieldDefinition, 0, len(fields))
	for _, f := range fields {
		jf, hasAny := fieldJoinDirective(f.Directives, graph)
		if hasAny && jf == nil {
			continue // has join__field entries, but none for this graph
		}
		nf := &ast.FieldDefinition{
			Name:       f.Name,
			Arguments:  f.Arguments,
			Type:       f.Type,
			Directives: rebuildFieldDirectives(f.Directives, graph),
		}
		out = append(out, nf)
	}
	return out
}

// fieldJoinDirective returns (directive, true) if a join__field directive
// names this graph, (nil, true) if join__field directives exist but none
// name this graph, or (nil, false) if there is no join__field at all.
func fieldJoinDirective(directives []*ast.Directive, graph GraphName) (*ast.Directive, bool) {
	found := false
	for _, d := range directives {
		if d.Name != "join__field" {
			continue
		}
		found = true
		if directiveGraph(d) == graph {
			return d, true
		}
	}
	return nil, found
}

// rebuildFieldDirectives carries over this graph's @requires/@provides/
// @external/@override annotations (read off the matching join__field) as
// federation execution directives, stripping every join__*/link directive.
func rebuildFieldDirectives(directives []*ast.Directive, graph GraphName) []*ast.Directive {
	kept := stripJoinDirectives(directives)

	jf, _ := fieldJoinDirective(directives, graph)
	if jf == nil {
		return kept
	}

	for _, arg := range jf.Arguments {
		switch arg.Name.String() {
		case "requires":
			kept = append(kept, &ast.Directive{Name: "requires", Arguments: []*ast.Argument{
				{Name: arg.Name, Value: arg.Value},
			}})
		case "provides":
			kept = append(kept, &ast.Directive{Name: "provides", Arguments: []*ast.Argument{
				{Name: arg.Name, Value: arg.Value},
			}})
		case "external":
			if strings.Trim(arg.Value.String(), "\"") == "true" {
				kept = append(kept, &ast.Directive{Name: "external"})
			}
		}
	}
	return kept
}

// rebuildKeyDirectives restores the @key directive(s) for this graph from
// @join__type(key: "...") annotations.
func rebuildKeyDirectives(directives []*ast.Directive, graph GraphName) []*ast.Directive {
	kept := stripJoinDirectives(directives)
	if fieldSet, ok := joinTypeKey(directives, graph); ok && fieldSet != "" {
		kept = append(kept, &ast.Directive{Name: "key", Arguments: []*ast.Argument{
			{Name: &ast.Name{Value: "fields"}, Value: &ast.StringValue{Value: fieldSet}},
		}})
	}
	return kept
}

func stripJoinDirectives(directives []*ast.Directive) []*ast.Directive {
	out := make([]*ast.Directive, 0, len(directives))
	for _, d := range directives {
		if strings.HasPrefix(d.Name, "join__") || d.Name == "link" {
			continue
		}
		out = append(out, d)
	}
	return out
}

func isJoinOrLinkDirectiveDef(d *ast.DirectiveDefinition) bool {
	name := d.Name.String()
	return strings.HasPrefix(name, "join__") || name == "link"
}

// pruneDeadTypes removes object/interface/input/union/enum definitions that
// no remaining field in out refers to, and that aren't root operation types
// or entities, repeating until a fixed point (referenced-by-a-referenced
// type chains can go several levels deep).
func pruneDeadTypes(out *ast.Document) {
	for {
		referenced := collectReferencedTypeNames(out)
		removed := false
		kept := out.Definitions[:0]
		for _, def := range out.Definitions {
			name, root := definitionNameAndRoot(def)
			if name == "" || root || referenced[name] {
				if fields := typeFieldsOf(def); fields != nil && len(fields) == 0 {
					// An object/interface left with no fields for this graph
					// is invalid SDL on its own; drop it even if its name is
					// still referenced elsewhere (the referencing field will
					// itself have been excluded for the same reason).
					removed = true
					continue
				}
				kept = append(kept, def)
				continue
			}
			removed = true
		}
		out.Definitions = kept
		if !removed {
			return
		}
	}
}

func typeFieldsOf(def ast.Definition) []*ast.FieldDefinition {
	switch d := def.(type) {
	case *ast.ObjectTypeDefinition:
		return d.Fields
	case *ast.InterfaceTypeDefinition:
		return d.Fields
	}
	return nil
}

func definitionNameAndRoot(def ast.Definition) (name string, root bool) {
	switch d := def.(type) {
	case *ast.ObjectTypeDefinition:
		n := d.Name.String()
		return n, n == "Query" || n == "Mutation" || n == "Subscription"
	case *ast.InterfaceTypeDefinition:
		return d.Name.String(), false
	case *ast.InputObjectTypeDefinition:
		return d.Name.String(), false
	case *ast.EnumTypeDefinition:
		return d.Name.String(), false
	case *ast.UnionTypeDefinition:
		return d.Name.String(), false
	case *ast.ScalarTypeDefinition:
		return d.Name.String(), true // scalars are never pruned for lack of references
	}
	return "", false
}

func collectReferencedTypeNames(out *ast.Document) map[string]bool {
	refs := make(map[string]bool)
	mark := func(t ast.Type) {
		if t != nil {
			refs[namedTypeOf(t)] = true
		}
	}
	for _, def := range out.Definitions {
		switch d := def.(type) {
		case *ast.ObjectTypeDefinition:
			for _, i := range d.Interfaces {
				refs[i.String()] = true
			}
			for _, f := range d.Fields {
				mark(f.Type)
				for _, a := range f.Arguments {
					mark(a.Type)
				}
			}
		case *ast.InterfaceTypeDefinition:
			for _, f := range d.Fields {
				mark(f.Type)
				for _, a := range f.Arguments {
					mark(a.Type)
				}
			}
		case *ast.InputObjectTypeDefinition:
			for _, f := range d.Fields {
				mark(f.Type)
			}
		case *ast.UnionTypeDefinition:
			for _, t := range d.Types {
				mark(t)
			}
		}
	}
	return refs
}

// namedTypeOf unwraps NonNull/List wrappers down to the underlying named
// type's string form.
func namedTypeOf(t ast.Type) string {
	switch v := t.(type) {
	case *ast.NonNullType:
		return namedTypeOf(v.Type)
	case *ast.ListType:
		return namedTypeOf(v.Type)
	default:
		return t.String()
	}
}
