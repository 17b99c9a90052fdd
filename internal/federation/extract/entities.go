package extract

import "github.com/n9te9/graphql-parser/ast"

// addEntityOperations adds the federation plumbing a subgraph schema needs to
// serve _entities/_service: the _Any scalar, the _Service object, an _Entity
// union over every entity type this graph owns with a resolvable key, and
// Query._entities/_service fields. full is the pre-extraction supergraph, used
// to decide which object types are entities at all (an entity may be present
// in out only as a stub with no resolvable key here, in which case it is
// still excluded from _Entity but kept as a type).
func addEntityOperations(out *ast.Document, full *ast.Document, graph GraphName) {
	entityNames := ownedResolvableEntityNames(out, full, graph)

	out.Definitions = append(out.Definitions,
		&ast.ScalarTypeDefinition{Name: &ast.Name{Value: "_Any"}},
		&ast.ObjectTypeDefinition{
			Name: &ast.Name{Value: "_Service"},
			Fields: []*ast.FieldDefinition{
				{Name: &ast.Name{Value: "sdl"}, Type: &ast.NamedType{Name: &ast.Name{Value: "String"}}},
			},
		},
	)

	if len(entityNames) > 0 {
		members := make([]ast.Type, 0, len(entityNames))
		for _, n := range entityNames {
			members = append(members, &ast.NamedType{Name: &ast.Name{Value: n}})
		}
		out.Definitions = append(out.Definitions, &ast.UnionTypeDefinition{
			Name:  &ast.Name{Value: "_Entity"},
			Types: members,
		})
	}

	query := findQueryType(out)
	if query == nil {
		query = &ast.ObjectTypeDefinition{Name: &ast.Name{Value: "Query"}}
		out.Definitions = append(out.Definitions, query)
	}

	query.Fields = append(query.Fields,
		&ast.FieldDefinition{
			Name: &ast.Name{Value: "_service"},
			Type: &ast.NonNullType{Type: &ast.NamedType{Name: &ast.Name{Value: "_Service"}}},
		},
	)
	if len(entityNames) > 0 {
		query.Fields = append(query.Fields, &ast.FieldDefinition{
			Name: &ast.Name{Value: "_entities"},
			Arguments: []*ast.InputValueDefinition{
				{
					Name: &ast.Name{Value: "representations"},
					Type: &ast.NonNullType{Type: &ast.ListType{
						Type: &ast.NonNullType{Type: &ast.NamedType{Name: &ast.Name{Value: "_Any"}}},
					}},
				},
			},
			Type: &ast.NonNullType{Type: &ast.ListType{
				Type: &ast.NamedType{Name: &ast.Name{Value: "_Entity"}},
			}},
		})
	}
}

func findQueryType(out *ast.Document) *ast.ObjectTypeDefinition {
	for _, def := range out.Definitions {
		if o, ok := def.(*ast.ObjectTypeDefinition); ok && o.Name.String() == "Query" {
			return o
		}
	}
	return nil
}

// ownedResolvableEntityNames returns, in declaration order, the object type
// names that are entities in the full supergraph (carry a @join__type key
// for this graph) and survived extraction into out.
func ownedResolvableEntityNames(out *ast.Document, full *ast.Document, graph GraphName) []string {
	present := make(map[string]bool)
	for _, def := range out.Definitions {
		if o, ok := def.(*ast.ObjectTypeDefinition); ok {
			present[o.Name.String()] = true
		}
	}

	var names []string
	for _, def := range full.Definitions {
		o, ok := def.(*ast.ObjectTypeDefinition)
		if !ok || !present[o.Name.String()] {
			continue
		}
		if fieldSet, ok := joinTypeKey(o.Directives, graph); ok && fieldSet != "" {
			names = append(names, o.Name.String())
		}
	}
	return names
}
