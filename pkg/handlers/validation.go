package handlers

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"

	"github.com/ekaya-inc/ekaya-charts/pkg/apperrors"
)

const (
	// maxBodyBytes caps request bodies.
	maxBodyBytes = 1 << 20
	// rootField is how gojsonschema names the document root.
	rootField = "(root)"
)

// Request body schemas. Unknown properties are accepted and ignored.
const (
	portSchema = `{"oneOf": [
		{"type": "integer", "minimum": 0, "maximum": 65535},
		{"type": "string", "pattern": "^[0-9]*$"},
		{"type": "null"}
	]}`

	connectionParamsSchema = `
		"driver":           {"type": "string"},
		"host":             {"type": "string"},
		"port":             ` + portSchema + `,
		"database":         {"type": "string"},
		"username":         {"type": "string"},
		"sslMode":          {"type": "string"},
		"collection":       {"type": "string"},
		"apiUrl":           {"type": "string"},
		"headers":          {"type": "object", "additionalProperties": {"type": "string"}},
		"dataPath":         {"type": "string"},
		"config":           {"type": "object"},
		"password":         {"type": "string"},
		"connectionString": {"type": "string"},
		"apiKey":           {"type": "string"}`

	createConnectionSchema = `{
		"type": "object",
		"required": ["name", "projectId", "type"],
		"properties": {
			"name":      {"type": "string", "minLength": 1, "pattern": "\\S"},
			"projectId": {"type": "string", "format": "uuid"},
			"type":      {"type": "string", "minLength": 1},
			"active":    {"type": "boolean"},
			` + connectionParamsSchema + `
		}
	}`

	updateConnectionSchema = `{
		"type": "object",
		"properties": {
			"name":   {"type": "string", "minLength": 1, "pattern": "\\S"},
			"type":   {"type": "string", "minLength": 1},
			"active": {"type": "boolean"},
			` + connectionParamsSchema + `
		}
	}`

	testConnectionSchema = `{
		"type": "object",
		"required": ["type"],
		"properties": {
			"type": {"type": "string"},
			"live": {"type": "boolean"},
			` + connectionParamsSchema + `
		}
	}`

	filtersSchema = `{
		"type": "array",
		"items": {
			"type": "object",
			"required": ["field", "op"],
			"properties": {
				"field": {"type": "string", "minLength": 1},
				"op":    {"type": "string", "minLength": 1}
			}
		}
	}`

	createDatasetSchema = `{
		"type": "object",
		"required": ["chartId", "connectionId"],
		"properties": {
			"chartId":      {"type": "string", "format": "uuid"},
			"connectionId": {"type": "string", "format": "uuid"},
			"query":        {"type": "string"},
			"apiEndpoint":  {"type": "string"},
			"xAxis":        {"type": "string"},
			"yAxis":        {"type": "string"},
			"filters":      ` + filtersSchema + `
		}
	}`

	updateDatasetSchema = `{
		"type": "object",
		"properties": {
			"chartId":      {"type": "string", "format": "uuid"},
			"connectionId": {"type": "string", "format": "uuid"},
			"query":        {"type": "string"},
			"apiEndpoint":  {"type": "string"},
			"xAxis":        {"type": "string"},
			"yAxis":        {"type": "string"},
			"filters":      ` + filtersSchema + `,
			"data": {
				"type": "array",
				"items": {"type": "object", "required": ["x", "y"]}
			}
		}
	}`
)

// Compiled schemas, one per request type.
var (
	createConnectionValidator = mustCompileSchema(createConnectionSchema)
	updateConnectionValidator = mustCompileSchema(updateConnectionSchema)
	testConnectionValidator   = mustCompileSchema(testConnectionSchema)
	createDatasetValidator    = mustCompileSchema(createDatasetSchema)
	updateDatasetValidator    = mustCompileSchema(updateDatasetSchema)
)

func mustCompileSchema(schema string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		panic(fmt.Sprintf("invalid request schema: %v", err))
	}
	return s
}

// decodeBody reads the request body, validates it against schema and decodes
// it into dst. Any rejection is returned as a ValidationError.
func decodeBody(r *http.Request, schema *gojsonschema.Schema, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return apperrors.NewValidationError("body", "could not read request body")
	}
	if len(body) > maxBodyBytes {
		return apperrors.NewValidationError("body", "request body too large")
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return apperrors.NewValidationError("body", "request body is required")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return apperrors.NewValidationError("body", "request body is not valid JSON")
	}
	if !result.Valid() {
		return &apperrors.ValidationError{Fields: fieldErrors(result.Errors())}
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return apperrors.NewValidationError("body", err.Error())
	}
	return nil
}

// fieldErrors converts schema results into field errors ordered by field.
// Missing required properties are reported against the property itself.
func fieldErrors(results []gojsonschema.ResultError) []apperrors.FieldError {
	fields := make([]apperrors.FieldError, 0, len(results))
	seen := make(map[string]bool, len(results))
	for _, re := range results {
		field := re.Field()
		if re.Type() == "required" {
			if prop, ok := re.Details()["property"].(string); ok {
				if field == rootField {
					field = prop
				} else {
					field = field + "." + prop
				}
			}
		}
		if field == rootField {
			field = "body"
		}
		// oneOf failures repeat for each branch; report a field once.
		if seen[field] {
			continue
		}
		seen[field] = true
		fields = append(fields, apperrors.FieldError{Field: field, Message: re.Description()})
	}
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
	return fields
}
