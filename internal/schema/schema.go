// Package schema provides JSON schema validation for compose documents.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

// Schema represents a JSON Schema for validation
type Schema struct {
	ID                   string             `json:"$id,omitempty"`
	Schema               string             `json:"$schema,omitempty"`
	Title                string             `json:"title,omitempty"`
	Description          string             `json:"description,omitempty"`
	Type                 string             `json:"type,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	PatternProperties    map[string]*Schema `json:"patternProperties,omitempty"`
	AdditionalProperties *Schema            `json:"additionalProperties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	Items                *Schema            `json:"items,omitempty"`
	Enum                 []interface{}      `json:"enum,omitempty"`
	Default              interface{}        `json:"default,omitempty"`
	Minimum              *float64           `json:"minimum,omitempty"`
	Maximum              *float64           `json:"maximum,omitempty"`
	MinLength            *int               `json:"minLength,omitempty"`
	MaxLength            *int               `json:"maxLength,omitempty"`
	MinProperties        *int               `json:"minProperties,omitempty"`
	Pattern              string             `json:"pattern,omitempty"`
	Format               string             `json:"format,omitempty"`
	OneOf                []*Schema          `json:"oneOf,omitempty"`
	AnyOf                []*Schema          `json:"anyOf,omitempty"`
	AllOf                []*Schema          `json:"allOf,omitempty"`
	Not                  *Schema            `json:"not,omitempty"`
	Ref                  string             `json:"$ref,omitempty"`
	Defs                 map[string]*Schema `json:"$defs,omitempty"`
}

// ValidationError represents a schema validation error
type ValidationError struct {
	Path    string
	Message string
	Value   interface{}
}

func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationResult contains all validation errors
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// Validator validates YAML/JSON against schemas
type Validator struct {
	schema   *Schema
	defs     map[string]*Schema
	patterns map[string]*regexp.Regexp
}

// NewValidator creates a new validator with the given schema
func NewValidator(schema *Schema) *Validator {
	defs := make(map[string]*Schema)
	for k, v := range schema.Defs {
		defs["#/$defs/"+k] = v
	}
	return &Validator{
		schema:   schema,
		defs:     defs,
		patterns: make(map[string]*regexp.Regexp),
	}
}

// ValidateFile validates a YAML or JSON file
func (v *Validator) ValidateFile(path string) *ValidationResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return failed(path, fmt.Sprintf("failed to read file: %v", err))
	}
	return v.ValidateBytes(data, path)
}

// ValidateBytes validates an in-memory document; name is used to pick the
// decoder and to report decode failures.
func (v *Validator) ValidateBytes(data []byte, name string) *ValidationResult {
	var doc interface{}
	if strings.HasSuffix(name, ".json") {
		if err := json.Unmarshal(data, &doc); err != nil {
			return failed(name, fmt.Sprintf("invalid JSON: %v", err))
		}
	} else {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return failed(name, fmt.Sprintf("invalid YAML: %v", err))
		}
	}
	return v.Validate(doc)
}

func failed(path, message string) *ValidationResult {
	return &ValidationResult{
		Valid:  false,
		Errors: []ValidationError{{Path: path, Message: message}},
	}
}

// Validate validates a document against the schema
func (v *Validator) Validate(doc interface{}) *ValidationResult {
	result := &ValidationResult{Valid: true}
	v.validate(v.schema, doc, "", result)
	result.Valid = len(result.Errors) == 0
	return result
}

func (r *ValidationResult) add(path, message string, value interface{}) {
	r.Errors = append(r.Errors, ValidationError{Path: path, Message: message, Value: value})
}

// validate recursively validates a value against a schema
func (v *Validator) validate(schema *Schema, value interface{}, path string, result *ValidationResult) {
	if schema == nil {
		return
	}

	if schema.Ref != "" {
		if refSchema, ok := v.defs[schema.Ref]; ok {
			v.validate(refSchema, value, path, result)
		} else {
			result.add(path, fmt.Sprintf("unresolved reference %s", schema.Ref), nil)
		}
		return
	}

	if len(schema.OneOf) > 0 {
		matches := 0
		for _, s := range schema.OneOf {
			if v.matches(s, value, path) {
				matches++
			}
		}
		if matches != 1 {
			result.add(path, fmt.Sprintf("must match exactly one of the schemas (matched %d)", matches), value)
		}
		return
	}

	if len(schema.AnyOf) > 0 {
		var best *ValidationResult
		for _, s := range schema.AnyOf {
			sub := &ValidationResult{Valid: true}
			v.validate(s, value, path, sub)
			if len(sub.Errors) == 0 {
				return
			}
			// Prefer errors from the branch whose type matches
			if s.Type != "" && v.checkType(s.Type, value) && best == nil {
				best = sub
			}
		}
		if best != nil {
			result.Errors = append(result.Errors, best.Errors...)
			return
		}
		result.add(path, fmt.Sprintf("unexpected value of type %s", typeName(value)), value)
		return
	}

	if len(schema.AllOf) > 0 {
		for _, s := range schema.AllOf {
			v.validate(s, value, path, result)
		}
		return
	}

	if schema.Not != nil && v.matches(schema.Not, value, path) {
		result.add(path, "value is not allowed", value)
		return
	}

	if schema.Type != "" && !v.checkType(schema.Type, value) {
		result.add(path, fmt.Sprintf("expected type %s, got %s", schema.Type, typeName(value)), value)
		return
	}

	if len(schema.Enum) > 0 {
		found := false
		for _, e := range schema.Enum {
			if value == e {
				found = true
				break
			}
		}
		if !found {
			result.add(path, fmt.Sprintf("value must be one of: %v", schema.Enum), value)
		}
	}

	if str, ok := value.(string); ok {
		if schema.MinLength != nil && len(str) < *schema.MinLength {
			result.add(path, fmt.Sprintf("string length must be at least %d", *schema.MinLength), value)
		}
		if schema.MaxLength != nil && len(str) > *schema.MaxLength {
			result.add(path, fmt.Sprintf("string length must be at most %d", *schema.MaxLength), value)
		}
		if schema.Pattern != "" {
			re, err := v.compile(schema.Pattern)
			if err != nil {
				result.add(path, fmt.Sprintf("invalid pattern %q in schema: %v", schema.Pattern, err), nil)
			} else if !re.MatchString(str) {
				result.add(path, fmt.Sprintf("value %q does not match pattern %s", str, schema.Pattern), value)
			}
		}
	}

	if num, ok := toFloat(value); ok {
		if schema.Minimum != nil && num < *schema.Minimum {
			result.add(path, fmt.Sprintf("value must be at least %v", *schema.Minimum), value)
		}
		if schema.Maximum != nil && num > *schema.Maximum {
			result.add(path, fmt.Sprintf("value must be at most %v", *schema.Maximum), value)
		}
	}

	if obj, ok := value.(map[string]interface{}); ok {
		v.validateObject(schema, obj, path, result)
	}

	if arr, ok := value.([]interface{}); ok && schema.Items != nil {
		for i, item := range arr {
			v.validate(schema.Items, item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}

func (v *Validator) validateObject(schema *Schema, obj map[string]interface{}, path string, result *ValidationResult) {
	for _, req := range schema.Required {
		if _, exists := obj[req]; !exists {
			result.add(joinPath(path, req), "required field is missing", nil)
		}
	}

	if schema.MinProperties != nil && len(obj) < *schema.MinProperties {
		result.add(path, fmt.Sprintf("must have at least %d entries", *schema.MinProperties), nil)
	}

	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		propValue := obj[key]
		keyPath := joinPath(path, key)

		if propSchema, ok := schema.Properties[key]; ok {
			v.validate(propSchema, propValue, keyPath, result)
			continue
		}

		matched := false
		for pattern, patternSchema := range schema.PatternProperties {
			re, err := v.compile(pattern)
			if err != nil || !re.MatchString(key) {
				continue
			}
			matched = true
			v.validate(patternSchema, propValue, keyPath, result)
		}
		if matched || schema.AdditionalProperties == nil {
			continue
		}

		if isFalse(schema.AdditionalProperties) {
			result.add(keyPath, "unknown field", nil)
			continue
		}
		v.validate(schema.AdditionalProperties, propValue, keyPath, result)
	}
}

func (v *Validator) matches(schema *Schema, value interface{}, path string) bool {
	sub := &ValidationResult{Valid: true}
	v.validate(schema, value, path, sub)
	return len(sub.Errors) == 0
}

func (v *Validator) compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := v.patterns[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	v.patterns[pattern] = re
	return re, nil
}

// checkType checks if a value matches the expected type
func (v *Validator) checkType(expected string, value interface{}) bool {
	if value == nil {
		return expected == "null"
	}

	switch expected {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := toFloat(value)
		return ok
	case "integer":
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float32, float64:
			f, _ := toFloat(value)
			return f == float64(int64(f))
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	case "null":
		return value == nil
	}
	return false
}

func typeName(value interface{}) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	}
	if _, ok := toFloat(value); ok {
		return "number"
	}
	return fmt.Sprintf("%T", value)
}

// toFloat converts a value to float64
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// joinPath joins path segments
func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}

// ValidateCompose validates a compose file against the generated schema
func ValidateCompose(path string) *ValidationResult {
	return report(NewValidator(GenerateSchema()).ValidateFile(path))
}

// ValidateComposeBytes validates an already interpolated compose document
func ValidateComposeBytes(data []byte, name string) *ValidationResult {
	return report(NewValidator(GenerateSchema()).ValidateBytes(data, name))
}

// ValidateComposeOverride validates a compose file that is merged over another
func ValidateComposeOverride(path string) *ValidationResult {
	return report(NewValidator(GenerateOverrideSchema()).ValidateFile(path))
}

// ValidateComposeFiles validates compose files in merge order: the first
// against the full schema, the rest as overrides.
func ValidateComposeFiles(paths []string) []*ValidationResult {
	results := make([]*ValidationResult, len(paths))
	for i, path := range paths {
		if i == 0 {
			results[i] = ValidateCompose(path)
		} else {
			results[i] = ValidateComposeOverride(path)
		}
	}
	return results
}

func report(result *ValidationResult) *ValidationResult {
	if !result.Valid {
		log.Debug("Schema validation failed", "errors", len(result.Errors))
		for _, err := range result.Errors {
			log.Debug("Validation error", "path", err.Path, "message", err.Message)
		}
	}
	return result
}

// WriteSchema writes the schema to a file
func WriteSchema(path string) error {
	data, err := MarshalSchema()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// MarshalSchema renders the schema as indented JSON
func MarshalSchema() ([]byte, error) {
	data, err := json.MarshalIndent(GenerateSchema(), "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
