package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/graphql-parser/lexer"
	"github.com/n9te9/graphql-parser/parser"
)

// JoinAnnotatedSchema synthesizes a join-directive-annotated view of the
// composed schema: a join__Graph enum plus @join__type/@join__field
// directives derived from Ownership and from each subgraph's own @key
// directives. SuperGraphV2 tracks field ownership out-of-band rather than
// embedding it in the merged schema text (see buildOwnershipMap), so this is
// the translation step that lets internal/federation/extract — built to read
// back an Apollo-style join-annotated supergraph — run against a schema this
// composer actually produced.
//
// It does not mutate sg.Schema; it builds a fresh document.
func (sg *SuperGraphV2) JoinAnnotatedSchema() (*ast.Document, error) {
	joinGraphEnum, err := buildJoinGraphEnum(sg.SubGraphs)
	if err != nil {
		return nil, err
	}

	out := &ast.Document{Definitions: make([]ast.Definition, 0, len(sg.Schema.Definitions)+1)}
	out.Definitions = append(out.Definitions, joinGraphEnum)

	for _, def := range sg.Schema.Definitions {
		switch d := def.(type) {
		case *ast.ObjectTypeDefinition:
			out.Definitions = append(out.Definitions, sg.annotateObject(d))
		case *ast.InterfaceTypeDefinition:
			out.Definitions = append(out.Definitions, sg.annotateSimple(d.Name.String(), d.Directives, func(dirs []*ast.Directive) ast.Definition {
				return &ast.InterfaceTypeDefinition{Name: d.Name, Fields: d.Fields, Directives: dirs}
			}))
		case *ast.InputObjectTypeDefinition:
			out.Definitions = append(out.Definitions, sg.annotateSimple(d.Name.String(), d.Directives, func(dirs []*ast.Directive) ast.Definition {
				return &ast.InputObjectTypeDefinition{Name: d.Name, Fields: d.Fields, Directives: dirs}
			}))
		case *ast.EnumTypeDefinition:
			out.Definitions = append(out.Definitions, sg.annotateSimple(d.Name.String(), d.Directives, func(dirs []*ast.Directive) ast.Definition {
				return &ast.EnumTypeDefinition{Name: d.Name, Values: d.Values, Directives: dirs}
			}))
		case *ast.UnionTypeDefinition:
			out.Definitions = append(out.Definitions, sg.annotateSimple(d.Name.String(), d.Directives, func(dirs []*ast.Directive) ast.Definition {
				return &ast.UnionTypeDefinition{Name: d.Name, Types: d.Types, Directives: dirs}
			}))
		case *ast.ScalarTypeDefinition:
			out.Definitions = append(out.Definitions, sg.annotateSimple(d.Name.String(), d.Directives, func(dirs []*ast.Directive) ast.Definition {
				return &ast.ScalarTypeDefinition{Name: d.Name, Directives: dirs}
			}))
		default:
			out.Definitions = append(out.Definitions, def)
		}
	}

	return out, nil
}

// annotateObject adds @join__type per declaring subgraph (carrying that
// subgraph's own @key fieldset, if any) and @join__field per field whose
// owner set is a strict subset of the type's declaring subgraphs.
func (sg *SuperGraphV2) annotateObject(d *ast.ObjectTypeDefinition) *ast.ObjectTypeDefinition {
	typeName := d.Name.String()
	declaring := sg.declaringSubGraphs(typeName)

	directives := append([]*ast.Directive{}, d.Directives...)
	for _, subGraph := range declaring {
		directives = append(directives, joinTypeDirective(subGraph.Name, subGraphKeyFieldSet(subGraph, typeName)))
	}

	fields := make([]*ast.FieldDefinition, len(d.Fields))
	for i, field := range d.Fields {
		fields[i] = sg.annotateField(typeName, field, declaring)
	}

	return &ast.ObjectTypeDefinition{
		Name:       d.Name,
		Interfaces: d.Interfaces,
		Fields:     fields,
		Directives: directives,
	}
}

// annotateField appends @join__field(graph: G) for each owning subgraph, but
// only when ownership is a strict subset of declaring — a field resolvable
// by every subgraph that declares the type gets no annotation, so extract's
// default-all rule picks it up for free.
func (sg *SuperGraphV2) annotateField(typeName string, field *ast.FieldDefinition, declaring []*SubGraphV2) *ast.FieldDefinition {
	owners := sg.GetSubGraphsForField(typeName, field.Name.String())
	directives := append([]*ast.Directive{}, field.Directives...)

	if len(owners) > 0 && len(owners) < len(declaring) {
		for _, owner := range owners {
			directives = append(directives, &ast.Directive{
				Name: "join__field",
				Arguments: []*ast.Argument{
					{Name: &ast.Name{Value: "graph"}, Value: &ast.StringValue{Value: enumValueName(owner.Name)}},
				},
			})
		}
	}

	return &ast.FieldDefinition{
		Name:       field.Name,
		Arguments:  field.Arguments,
		Type:       field.Type,
		Directives: directives,
	}
}

// annotateSimple adds @join__type(graph: G) per declaring subgraph to
// definition kinds that carry no per-field/per-value ownership tracking in
// Ownership (interfaces, inputs, enums, unions, scalars).
func (sg *SuperGraphV2) annotateSimple(typeName string, existing []*ast.Directive, rebuild func([]*ast.Directive) ast.Definition) ast.Definition {
	directives := append([]*ast.Directive{}, existing...)
	for _, subGraph := range sg.declaringSubGraphs(typeName) {
		directives = append(directives, joinTypeDirective(subGraph.Name, ""))
	}
	return rebuild(directives)
}

func joinTypeDirective(graphName, keyFieldSet string) *ast.Directive {
	args := []*ast.Argument{
		{Name: &ast.Name{Value: "graph"}, Value: &ast.StringValue{Value: enumValueName(graphName)}},
	}
	if keyFieldSet != "" {
		args = append(args, &ast.Argument{Name: &ast.Name{Value: "key"}, Value: &ast.StringValue{Value: keyFieldSet}})
	}
	return &ast.Directive{Name: "join__type", Arguments: args}
}

// declaringSubGraphs returns, in sg.SubGraphs order, every subgraph whose own
// (unmerged) schema declares typeName in any form.
func (sg *SuperGraphV2) declaringSubGraphs(typeName string) []*SubGraphV2 {
	var out []*SubGraphV2
	for _, subGraph := range sg.SubGraphs {
		for _, def := range subGraph.Schema.Definitions {
			if name, ok := definitionName(def); ok && name == typeName {
				out = append(out, subGraph)
				break
			}
		}
	}
	return out
}

// definitionName extracts the type name from the definition kinds composeSchema merges.
func definitionName(def ast.Definition) (string, bool) {
	switch d := def.(type) {
	case *ast.ObjectTypeDefinition:
		return d.Name.String(), true
	case *ast.ObjectTypeExtension:
		return d.Name.String(), true
	case *ast.InterfaceTypeDefinition:
		return d.Name.String(), true
	case *ast.InputObjectTypeDefinition:
		return d.Name.String(), true
	case *ast.EnumTypeDefinition:
		return d.Name.String(), true
	case *ast.ScalarTypeDefinition:
		return d.Name.String(), true
	case *ast.UnionTypeDefinition:
		return d.Name.String(), true
	}
	return "", false
}

// subGraphKeyFieldSet reads the "fields" argument of the first @key
// directive on subGraph's own (unmerged) definition of typeName, if any.
func subGraphKeyFieldSet(subGraph *SubGraphV2, typeName string) string {
	var directives []*ast.Directive
	for _, def := range subGraph.Schema.Definitions {
		switch d := def.(type) {
		case *ast.ObjectTypeDefinition:
			if d.Name.String() == typeName {
				directives = d.Directives
			}
		case *ast.ObjectTypeExtension:
			if d.Name.String() == typeName {
				directives = d.Directives
			}
		}
		if directives != nil {
			break
		}
	}

	for _, d := range directives {
		if d.Name != "key" {
			continue
		}
		for _, arg := range d.Arguments {
			if arg.Name.String() == "fields" {
				return strings.Trim(arg.Value.String(), "\"")
			}
		}
	}
	return ""
}

// enumValueName maps a subgraph name to a join__Graph enum value
// (upper-snake-case, GraphQL Name-safe).
func enumValueName(subgraphName string) string {
	var b strings.Builder
	for _, r := range subgraphName {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - ('a' - 'A'))
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := b.String()
	if name == "" {
		return "_"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	return name
}

// buildJoinGraphEnum parses a synthesized "enum join__Graph { ... }" block
// rather than hand-building EnumValueDefinition nodes, the same technique
// NewSubGraphV2 uses to turn raw SDL into AST.
func buildJoinGraphEnum(subGraphs []*SubGraphV2) (*ast.EnumTypeDefinition, error) {
	names := make([]string, 0, len(subGraphs))
	seen := make(map[string]bool, len(subGraphs))
	for _, sg := range subGraphs {
		v := enumValueName(sg.Name)
		if seen[v] {
			continue
		}
		seen[v] = true
		names = append(names, v)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("enum join__Graph {\n")
	for _, n := range names {
		sb.WriteString("  ")
		sb.WriteString(n)
		sb.WriteString("\n")
	}
	sb.WriteString("}\n")

	l := lexer.New(sb.String())
	p := parser.New(l)
	doc := p.ParseDocument()
	if len(p.Errors()) > 0 {
		return nil, fmt.Errorf("join_annotate: building join__Graph enum: %v", p.Errors())
	}
	for _, def := range doc.Definitions {
		if enumDef, ok := def.(*ast.EnumTypeDefinition); ok {
			return enumDef, nil
		}
	}
	return nil, fmt.Errorf("join_annotate: parser produced no join__Graph enum")
}
