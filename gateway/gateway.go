package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/n9te9/federation-core/federation/executor"
	"github.com/n9te9/federation-core/federation/graph"
	"github.com/n9te9/federation-core/federation/planner"
	"github.com/n9te9/federation-core/internal/cache"
	"github.com/n9te9/federation-core/internal/federation/extract"
	"github.com/n9te9/federation-core/internal/fetch"
	"github.com/n9te9/federation-core/internal/value"
	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/graphql-parser/lexer"
	"github.com/n9te9/graphql-parser/parser"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type GatewayService struct {
	Name        string   `yaml:"name"`
	Host        string   `yaml:"host"`
	SchemaFiles []string `yaml:"schema_files"`
}

type GatewayOption struct {
	Endpoint                    string               `yaml:"endpoint"`
	ServiceName                 string               `yaml:"service_name"`
	Port                        int                  `yaml:"port"`
	TimeoutDuration             string               `yaml:"timeout_duration" default:"5s"`
	EnableHangOverRequestHeader bool                 `yaml:"enable_hang_over_request_header" default:"true"`
	Services                    []GatewayService     `yaml:"services"`
	Opentelemetry               OpentelemetrySetting `yaml:"opentelemetry"`
	Cache                       CacheSetting         `yaml:"cache"`
}

type OpentelemetrySetting struct {
	TracingSetting OpentelemetryTracingSetting `yaml:"tracing"`
}

type OpentelemetryTracingSetting struct {
	Enable bool `yaml:"enable" default:"false"`
}

// CacheSetting configures the gateway-level response cache. It is separate from any per-subgraph cache a fetcher
// might consult; the gateway only caches whole-query root results here.
type CacheSetting struct {
	Enable   bool   `yaml:"enable" default:"false"`
	TTL      string `yaml:"ttl" default:"30s"`
	Version  string `yaml:"version" default:"v1"`
}

type gateway struct {
	graphQLEndpoint string
	serviceName     string
	planner         *planner.PlannerV2
	executor        *executor.ExecutorV2
	superGraph      *graph.SuperGraphV2

	enableComplementRequestId   bool
	enableHangOverRequestHeader bool
	enableOpentelemetryTracing  bool

	respCache    cache.Store
	cacheTTL     time.Duration
	cacheVersion string

	// cacheTagFormats maps a __typename to its @cacheTag(format: "...") template,
	// recovered by reconstructing each subgraph's own schema from superGraph via
	// internal/federation/extract. Empty when no subgraph declares @cacheTag.
	cacheTagFormats map[string]string
}

var _ http.Handler = (*gateway)(nil)

func NewGateway(settings GatewayOption) (*gateway, error) {
	var subGraphs []*graph.SubGraphV2
	for _, s := range settings.Services {
		var schema []byte
		for _, f := range s.SchemaFiles {
			src, err := os.ReadFile(f)
			if err != nil {
				return nil, err
			}
			schema = append(schema, src...)
		}

		subGraph, err := graph.NewSubGraphV2(s.Name, schema, s.Host)
		if err != nil {
			return nil, err
		}

		subGraphs = append(subGraphs, subGraph)
	}

	superGraph, err := graph.NewSuperGraphV2(subGraphs)
	if err != nil {
		return nil, err
	}

	joinSchema, err := superGraph.JoinAnnotatedSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to build join-annotated schema: %w", err)
	}
	extracted, err := extract.Extract(joinSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to extract subgraph schemas: %w", err)
	}
	cacheTagFormats := cacheTagFormatsFromResults(extracted)

	// Create HTTP client with timeout for subgraph requests
	httpClient := &http.Client{
		Timeout: 3 * time.Second, // 3 second timeout for subgraph requests
	}

	if settings.Opentelemetry.TracingSetting.Enable {
		httpClient.Transport = otelhttp.NewTransport(http.DefaultTransport)
	}

	gw := &gateway{
		graphQLEndpoint:             settings.Endpoint,
		serviceName:                 settings.ServiceName,
		planner:                     planner.NewPlannerV2(superGraph),
		executor:                    executor.NewExecutorV2(fetch.NewFetcher(httpClient), superGraph),
		superGraph:                  superGraph,
		enableComplementRequestId:   true,
		enableHangOverRequestHeader: settings.EnableHangOverRequestHeader,
		enableOpentelemetryTracing:  settings.Opentelemetry.TracingSetting.Enable,
		cacheTagFormats:             cacheTagFormats,
	}

	if settings.Cache.Enable {
		ttl := 30 * time.Second
		if d, err := time.ParseDuration(settings.Cache.TTL); err == nil {
			ttl = d
		}
		version := settings.Cache.Version
		if version == "" {
			version = "v1"
		}
		gw.respCache = cache.NewMemoryStore()
		gw.cacheTTL = ttl
		gw.cacheVersion = version
	}

	return gw, nil
}

// lookupCachedResponse checks the root-level response cache for this exact
// query+variables. Batch requests always bypass the cache; ServeHTTP never
// calls this for the batched path since this handler only ever serves one
// operation per HTTP request.
func (g *gateway) lookupCachedResponse(ctx context.Context, body []byte) ([]byte, bool) {
	if g.respCache == nil {
		return nil, false
	}
	key, _, err := cache.RootKey(cache.RootKeyInput{
		Version:     g.cacheVersion,
		Subgraph:    g.serviceName,
		GraphQLType: "Query",
		QueryHash:   fetch.QueryHash(string(body)),
		Body:        string(body),
	})
	if err != nil {
		return nil, false
	}
	entry, ok, err := g.respCache.Fetch(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	return entry.Value, true
}

func (g *gateway) storeCachedResponse(ctx context.Context, body, response []byte, data map[string]interface{}) {
	if g.respCache == nil {
		return
	}
	key, tag, err := cache.RootKey(cache.RootKeyInput{
		Version:     g.cacheVersion,
		Subgraph:    g.serviceName,
		GraphQLType: "Query",
		QueryHash:   fetch.QueryHash(string(body)),
		Body:        string(body),
	})
	if err != nil {
		return
	}
	tags := append([]string{tag}, g.explicitCacheTags(data)...)
	_ = g.respCache.Insert(ctx, cache.Entry{
		Key:       key,
		Value:     response,
		Tags:      tags,
		ExpiresAt: time.Now().Add(g.cacheTTL),
	})
}

// explicitCacheTags renders one cache tag per entity embedded in data whose
// __typename carries a @cacheTag(format: "...") template. Entities with no
// matching format, or whose format fails to render, contribute no tag.
func (g *gateway) explicitCacheTags(data map[string]interface{}) []string {
	if len(g.cacheTagFormats) == 0 {
		return nil
	}

	var tags []string
	var walk func(v interface{})
	walk = func(v interface{}) {
		switch t := v.(type) {
		case map[string]interface{}:
			if typeName, ok := t["__typename"].(string); ok {
				if format, ok := g.cacheTagFormats[typeName]; ok {
					if tag, errs := cache.RenderCacheTag(format, value.FromAny(t)); len(errs) == 0 {
						tags = append(tags, tag)
					}
				}
			}
			for _, child := range t {
				walk(child)
			}
		case []interface{}:
			for _, child := range t {
				walk(child)
			}
		}
	}
	walk(data)

	return tags
}

// cacheTagFormatsFromResults scans every reconstructed subgraph schema for
// object types carrying a @cacheTag(format: "...") directive, keyed by type
// name. A type declared identically by more than one subgraph is expected to
// carry the same format in each; the last one scanned wins.
func cacheTagFormatsFromResults(results []extract.Result) map[string]string {
	formats := make(map[string]string)
	for _, result := range results {
		for _, def := range result.Schema.Definitions {
			objType, ok := def.(*ast.ObjectTypeDefinition)
			if !ok {
				continue
			}
			for _, d := range objType.Directives {
				if d.Name != "cacheTag" {
					continue
				}
				for _, arg := range d.Arguments {
					if arg.Name.String() == "format" {
						formats[objType.Name.String()] = strings.Trim(arg.Value.String(), `"`)
					}
				}
			}
		}
	}
	return formats
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func (g *gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var req graphQLRequest
	if err := json.Unmarshal(rawBody, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if g.enableHangOverRequestHeader {
		ctx = executor.SetRequestHeaderToContext(ctx, r.Header)
	}

	if cached, ok := g.lookupCachedResponse(ctx, rawBody); ok {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "HIT")
		w.Write(cached)
		return
	}

	l := lexer.New(req.Query)
	p := parser.New(l)
	doc := p.ParseDocument()
	if len(p.Errors()) > 0 {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"errors": p.Errors(),
		})
		return
	}

	// Validate @inaccessible fields
	if err := g.validateAccessibility(doc); err != nil {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]any{
				{
					"message":    err.Error(),
					"extensions": map[string]string{"code": "INACCESSIBLE_FIELD"},
				},
			},
		})
		return
	}

	plan, err := g.planner.Plan(doc, req.Variables)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"errors": []string{err.Error()},
		})
		return
	}

	resp, err := g.executor.Execute(ctx, plan, req.Variables)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"errors": []string{err.Error()},
		})
		return
	}

	respBody, err := json.Marshal(resp)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"errors": []string{err.Error()}})
		return
	}

	var dataMap map[string]interface{}
	if d, ok := resp["data"].(map[string]interface{}); ok {
		dataMap = d
	}
	g.storeCachedResponse(ctx, rawBody, respBody, dataMap)

	w.Header().Set("Content-Type", "application/json")
	w.Write(respBody)
}

func (g *gateway) Start(port int) error {
	fmt.Printf("Gateway started on port %d\n", port)
	return http.ListenAndServe(fmt.Sprintf(":%d", port), g)
}

// validateAccessibility validates that no @inaccessible fields are queried.
func (g *gateway) validateAccessibility(doc *ast.Document) error {
	for _, def := range doc.Definitions {
		if opDef, ok := def.(*ast.OperationDefinition); ok {
			rootTypeName := "Query"
			switch opDef.Operation {
			case ast.Query:
				rootTypeName = "Query"
			case ast.Mutation:
				rootTypeName = "Mutation"
			case ast.Subscription:
				rootTypeName = "Subscription"
			}

			if err := g.validateSelectionSet(opDef.SelectionSet, rootTypeName); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateSelectionSet recursively validates selections.
func (g *gateway) validateSelectionSet(selSet []ast.Selection, parentTypeName string) error {
	if selSet == nil {
		return nil
	}

	for _, sel := range selSet {
		switch s := sel.(type) {
		case *ast.Field:
			fieldName := s.Name.String()

			// Skip introspection fields
			if fieldName == "__typename" || fieldName == "__schema" || fieldName == "__type" {
				continue
			}

			// Check if field is inaccessible
			if err := g.checkFieldAccessibility(parentTypeName, fieldName); err != nil {
				return err
			}

			// Get the field type for recursive validation
			nextTypeName := g.getFieldTypeName(parentTypeName, fieldName)
			if nextTypeName != "" {
				if err := g.validateSelectionSet(s.SelectionSet, nextTypeName); err != nil {
					return err
				}
			}

		case *ast.FragmentSpread:
			// Handle fragment spreads
			// For now, skip validation in fragments
			// TODO: Implement fragment validation

		case *ast.InlineFragment:
			// Handle inline fragments
			typeCondition := ""
			if s.TypeCondition != nil {
				typeCondition = s.TypeCondition.String()
			}
			if typeCondition == "" {
				typeCondition = parentTypeName
			}
			if err := g.validateSelectionSet(s.SelectionSet, typeCondition); err != nil {
				return err
			}
		}
	}

	return nil
}

// checkFieldAccessibility checks if a field is inaccessible.
func (g *gateway) checkFieldAccessibility(typeName, fieldName string) error {
	for _, subGraph := range g.superGraph.SubGraphs {
		if entity, exists := subGraph.GetEntity(typeName); exists {
			if field, ok := entity.Fields[fieldName]; ok {
				if field.IsInaccessible() {
					return fmt.Errorf("Cannot query field \"%s\" on type \"%s\"", fieldName, typeName)
				}
			}
		}

		// Also check non-entity types in the schema
		for _, def := range subGraph.Schema.Definitions {
			if objDef, ok := def.(*ast.ObjectTypeDefinition); ok {
				if objDef.Name.String() == typeName {
					for _, f := range objDef.Fields {
						if f.Name.String() == fieldName {
							// Check for @inaccessible directive
							for _, d := range f.Directives {
								if d.Name == "inaccessible" {
									return fmt.Errorf("Cannot query field \"%s\" on type \"%s\"", fieldName, typeName)
								}
							}
						}
					}
				}
			}
		}
	}

	return nil
}

// getFieldTypeName returns the type name of a field.
func (g *gateway) getFieldTypeName(typeName, fieldName string) string {
	for _, def := range g.superGraph.Schema.Definitions {
		if objDef, ok := def.(*ast.ObjectTypeDefinition); ok {
			if objDef.Name.String() == typeName {
				for _, field := range objDef.Fields {
					if field.Name.String() == fieldName {
						return g.unwrapTypeName(field.Type)
					}
				}
			}
		}
	}
	return ""
}

// unwrapTypeName extracts the base type name from a type.
func (g *gateway) unwrapTypeName(t ast.Type) string {
	switch typ := t.(type) {
	case *ast.NamedType:
		return typ.Name.String()
	case *ast.ListType:
		return g.unwrapTypeName(typ.Type)
	case *ast.NonNullType:
		return g.unwrapTypeName(typ.Type)
	}
	return ""
}
