// Package openapi builds an OpenAPI 3.0 document from registered routes by
// reflecting on their request and response types.
package openapi

import (
	"encoding/json"
	"net/http"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

// =============================================================================
// Generator
// =============================================================================

// Generator produces OpenAPI 3.0 documents from registered operations.
type Generator struct {
	title       string
	version     string
	description string
	servers     []string
	operations  []Operation
	mu          sync.RWMutex
	cachedSpec  *openapi3.T
}

// Operation describes one route.
type Operation struct {
	Method  string // http.MethodGet, ...
	Path    string // chi-style, e.g. /api/v1/containers/{id}
	ID      string // operationId
	Summary string
	Tag     string

	// Request is the JSON body model, nil for none. RawBody marks an opaque
	// binary body instead.
	Request any
	RawBody bool

	// Query lists boolean or string query parameters by name.
	Query []string

	Status   int // success status, defaults to 200
	Response any // success body model, nil for none
}

// Option configures the generator.
type Option func(*Generator)

// WithTitle sets the API title.
func WithTitle(title string) Option {
	return func(g *Generator) {
		g.title = title
	}
}

// WithVersion sets the API version.
func WithVersion(version string) Option {
	return func(g *Generator) {
		g.version = version
	}
}

// WithDescription sets the API description.
func WithDescription(description string) Option {
	return func(g *Generator) {
		g.description = description
	}
}

// WithServer adds a server URL.
func WithServer(url string) Option {
	return func(g *Generator) {
		g.servers = append(g.servers, url)
	}
}

// NewGenerator creates a new OpenAPI generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		title:   "fabricd API",
		version: "1.0.0",
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Register adds an operation to the document.
func (g *Generator) Register(ops ...Operation) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.operations = append(g.operations, ops...)
	g.cachedSpec = nil
}

// Generate produces the complete document. The result is cached until the
// next Register call.
func (g *Generator) Generate() *openapi3.T {
	g.mu.RLock()
	if g.cachedSpec != nil {
		spec := g.cachedSpec
		g.mu.RUnlock()
		return spec
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cachedSpec != nil {
		return g.cachedSpec
	}

	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       g.title,
			Version:     g.version,
			Description: g.description,
		},
		Paths: &openapi3.Paths{},
		Components: &openapi3.Components{
			Schemas: make(openapi3.Schemas),
		},
	}
	for _, url := range g.servers {
		spec.Servers = append(spec.Servers, &openapi3.Server{URL: url})
	}

	spec.Components.Schemas["Error"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"error": stringSchema(),
				"code":  stringSchema(),
			},
			Required: []string{"error", "code"},
		},
	}

	for _, op := range g.operations {
		g.addOperation(spec, op)
	}

	g.cachedSpec = spec
	return spec
}

// Handler serves the document as JSON.
func (g *Generator) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(g.Generate()); err != nil {
			http.Error(w, "failed to encode OpenAPI document", http.StatusInternalServerError)
		}
	}
}

// =============================================================================
// Paths
// =============================================================================

func (g *Generator) addOperation(spec *openapi3.T, op Operation) {
	item := spec.Paths.Value(op.Path)
	if item == nil {
		item = &openapi3.PathItem{}
		for _, name := range pathParams(op.Path) {
			item.Parameters = append(item.Parameters, &openapi3.ParameterRef{
				Value: &openapi3.Parameter{
					Name:     name,
					In:       openapi3.ParameterInPath,
					Required: true,
					Schema:   stringSchema(),
				},
			})
		}
		spec.Paths.Set(op.Path, item)
	}

	operation := &openapi3.Operation{
		OperationID: op.ID,
		Summary:     op.Summary,
		Responses:   openapi3.NewResponses(),
	}
	if op.Tag != "" {
		operation.Tags = []string{op.Tag}
	}

	for _, name := range op.Query {
		operation.Parameters = append(operation.Parameters, &openapi3.ParameterRef{
			Value: &openapi3.Parameter{
				Name:   name,
				In:     openapi3.ParameterInQuery,
				Schema: stringSchema(),
			},
		})
	}

	switch {
	case op.RawBody:
		operation.RequestBody = &openapi3.RequestBodyRef{
			Value: &openapi3.RequestBody{
				Required: true,
				Content: openapi3.Content{
					"application/octet-stream": &openapi3.MediaType{
						Schema: &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "binary"}},
					},
				},
			},
		}
	case op.Request != nil:
		operation.RequestBody = &openapi3.RequestBodyRef{
			Value: &openapi3.RequestBody{
				Required: true,
				Content:  openapi3.NewContentWithJSONSchemaRef(g.schemaRef(spec, op.Request)),
			},
		}
	}

	status := op.Status
	if status == 0 {
		status = http.StatusOK
	}
	success := openapi3.NewResponse().WithDescription(http.StatusText(status))
	if op.Response != nil {
		success.Content = openapi3.NewContentWithJSONSchemaRef(g.schemaRef(spec, op.Response))
	}
	operation.Responses.Set(strconv.Itoa(status), &openapi3.ResponseRef{Value: success})

	errResp := openapi3.NewResponse().WithDescription("Error").
		WithContent(openapi3.NewContentWithJSONSchemaRef(&openapi3.SchemaRef{Ref: "#/components/schemas/Error"}))
	operation.Responses.Set("default", &openapi3.ResponseRef{Value: errResp})

	item.SetOperation(op.Method, operation)
}

// schemaRef registers named struct models as components and references them.
func (g *Generator) schemaRef(spec *openapi3.T, model any) *openapi3.SchemaRef {
	t := reflect.TypeOf(model)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || t.Name() == "" || t == reflect.TypeOf(time.Time{}) {
		return g.goTypeToSchema(t)
	}
	if _, ok := spec.Components.Schemas[t.Name()]; !ok {
		spec.Components.Schemas[t.Name()] = g.extractSchema(t)
	}
	return &openapi3.SchemaRef{Ref: "#/components/schemas/" + t.Name()}
}

func pathParams(path string) []string {
	var params []string
	for _, seg := range strings.Split(path, "/") {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			params = append(params, seg[1:len(seg)-1])
		}
	}
	return params
}

// =============================================================================
// Schema Generation
// =============================================================================

// extractSchema builds an object schema from the exported fields of a struct.
// Fields tagged validate:"required" are listed as required.
func (g *Generator) extractSchema(t reflect.Type) *openapi3.SchemaRef {
	schema := &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: make(openapi3.Schemas),
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}
		name := field.Name
		if parts := strings.Split(jsonTag, ","); parts[0] != "" {
			name = parts[0]
		}

		if propSchema := g.goTypeToSchema(field.Type); propSchema != nil {
			schema.Properties[name] = propSchema
		}
		if strings.Contains(field.Tag.Get("validate"), "required") {
			schema.Required = append(schema.Required, name)
		}
	}
	sort.Strings(schema.Required)

	return &openapi3.SchemaRef{Value: schema}
}

// goTypeToSchema converts a Go type to an OpenAPI schema.
func (g *Generator) goTypeToSchema(t reflect.Type) *openapi3.SchemaRef {
	switch t.Kind() {
	case reflect.String:
		return stringSchema()

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}}

	case reflect.Int64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}}}

	case reflect.Float32, reflect.Float64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"number"}}}

	case reflect.Bool:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}}

	case reflect.Slice, reflect.Array:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:  &openapi3.Types{"array"},
				Items: g.goTypeToSchema(t.Elem()),
			},
		}

	case reflect.Map:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:                 &openapi3.Types{"object"},
				AdditionalProperties: openapi3.AdditionalProperties{Schema: g.goTypeToSchema(t.Elem())},
			},
		}

	case reflect.Ptr:
		schema := g.goTypeToSchema(t.Elem())
		if schema != nil && schema.Value != nil {
			schema.Value.Nullable = true
		}
		return schema

	case reflect.Struct:
		if t == reflect.TypeOf(time.Time{}) {
			return &openapi3.SchemaRef{
				Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"},
			}
		}
		return g.extractSchema(t)

	default:
		// interface{} and friends: any JSON value
		return &openapi3.SchemaRef{Value: &openapi3.Schema{}}
	}
}

func stringSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}}
}
