package schema

import "reflect"

// False is the schema that matches nothing. As additionalProperties it
// rejects unknown fields.
var False = &Schema{Not: &Schema{}}

func isFalse(s *Schema) bool {
	return s != nil && s.Not != nil && reflect.DeepEqual(*s.Not, Schema{})
}

func intPtr(n int) *int { return &n }

func floatPtr(f float64) *float64 { return &f }

// extensions allows x- prefixed extension fields
var extensions = map[string]*Schema{"^x-": {}}

func stringList() *Schema {
	return &Schema{Type: "array", Items: &Schema{Type: "string"}}
}

// stringOrList accepts a single string or a list of strings
func stringOrList() *Schema {
	return &Schema{AnyOf: []*Schema{{Type: "string"}, stringList(), {Type: "null"}}}
}

// listOrDict accepts a KEY=VALUE list or a mapping of scalars
func listOrDict() *Schema {
	return &Schema{AnyOf: []*Schema{
		{
			Type: "object",
			AdditionalProperties: &Schema{AnyOf: []*Schema{
				{Type: "string"}, {Type: "number"}, {Type: "boolean"}, {Type: "null"},
			}},
		},
		stringList(),
	}}
}

// GenerateSchema generates a JSON Schema for compose documents
func GenerateSchema() *Schema {
	return &Schema{
		Schema:      "https://json-schema.org/draft/2020-12/schema",
		ID:          "https://bookshelf.dev/schema/compose/v1",
		Title:       "Compose document",
		Description: "Schema for the docker-compose.yml of the development stack",
		Type:        "object",
		Required:    []string{"services"},
		Properties: map[string]*Schema{
			"version": {
				Type:        "string",
				Description: "Obsolete compose file version",
			},
			"name": {
				Type:        "string",
				Description: "Project name",
				Pattern:     "^[a-z0-9][a-z0-9_-]*$",
			},
			"services": {
				Type:                 "object",
				Description:          "Service definitions keyed by service name",
				MinProperties:        intPtr(1),
				PatternProperties:    map[string]*Schema{"^[a-zA-Z0-9][a-zA-Z0-9_.-]*$": {Ref: "#/$defs/service"}},
				AdditionalProperties: False,
			},
			"volumes": {
				Type:        "object",
				Description: "Named volumes",
				PatternProperties: map[string]*Schema{
					"^[a-zA-Z0-9][a-zA-Z0-9_.-]*$": {AnyOf: []*Schema{{Type: "null"}, {Ref: "#/$defs/volume"}}},
				},
				AdditionalProperties: False,
			},
			"networks": {Type: "object"},
			"secrets":  {Type: "object"},
			"configs":  {Type: "object"},
		},
		PatternProperties:    extensions,
		AdditionalProperties: False,
		Defs: map[string]*Schema{
			"service": {
				Type: "object",
				Properties: map[string]*Schema{
					"build":          {Ref: "#/$defs/build"},
					"image":          {Type: "string", MinLength: intPtr(1)},
					"container_name": {Type: "string"},
					"command":        stringOrList(),
					"entrypoint":     stringOrList(),
					"ports": {
						Type:  "array",
						Items: &Schema{Ref: "#/$defs/port"},
					},
					"expose": {
						Type:  "array",
						Items: &Schema{AnyOf: []*Schema{{Type: "string"}, {Type: "integer"}}},
					},
					"volumes": {
						Type:  "array",
						Items: &Schema{Ref: "#/$defs/mount"},
					},
					"environment": listOrDict(),
					"env_file":    stringOrList(),
					"depends_on":  {Ref: "#/$defs/depends_on"},
					"restart": {
						Type:    "string",
						Pattern: "^(no|always|unless-stopped|on-failure(:[0-9]+)?)$",
					},
					"healthcheck":       {Ref: "#/$defs/healthcheck"},
					"labels":            listOrDict(),
					"networks":          {},
					"network_mode":      {Type: "string"},
					"working_dir":       {Type: "string"},
					"user":              {Type: "string"},
					"hostname":          {Type: "string"},
					"platform":          {Type: "string"},
					"pull_policy":       {Type: "string", Enum: []interface{}{"always", "never", "missing", "build", "if_not_present"}},
					"profiles":          stringList(),
					"stdin_open":        {Type: "boolean"},
					"tty":               {Type: "boolean"},
					"init":              {Type: "boolean"},
					"privileged":        {Type: "boolean"},
					"extra_hosts":       listOrDict(),
					"dns":               stringOrList(),
					"cap_add":           stringList(),
					"cap_drop":          stringList(),
					"tmpfs":             stringOrList(),
					"shm_size":          {AnyOf: []*Schema{{Type: "string"}, {Type: "integer"}}},
					"stop_grace_period": {Type: "string"},
					"stop_signal":       {Type: "string"},
					"logging":           {Type: "object"},
					"deploy":            {Type: "object"},
					"develop":           {Type: "object"},
					"secrets":           {Type: "array"},
					"configs":           {Type: "array"},
					"ulimits":           {Type: "object"},
				},
				PatternProperties:    extensions,
				AdditionalProperties: False,
			},
			"build": {
				AnyOf: []*Schema{
					{Type: "string", MinLength: intPtr(1)},
					{
						Type: "object",
						Properties: map[string]*Schema{
							"context":    {Type: "string"},
							"dockerfile": {Type: "string"},
							"args":       listOrDict(),
							"target":     {Type: "string"},
						},
						PatternProperties:    extensions,
						AdditionalProperties: False,
					},
				},
			},
			"port": {
				AnyOf: []*Schema{
					{Type: "string", Pattern: `^((\[[0-9a-fA-F:.]+\]|[0-9.]+):)?(([0-9]+(-[0-9]+)?)?:)?[0-9]+(/(tcp|udp|sctp))?$`},
					{Type: "integer", Minimum: floatPtr(1), Maximum: floatPtr(65535)},
					{
						Type:     "object",
						Required: []string{"target"},
						Properties: map[string]*Schema{
							"target":    {Type: "integer", Minimum: floatPtr(1), Maximum: floatPtr(65535)},
							"published": {AnyOf: []*Schema{{Type: "string"}, {Type: "integer"}}},
							"host_ip":   {Type: "string"},
							"protocol":  {Type: "string", Enum: []interface{}{"tcp", "udp", "sctp"}},
							"mode":      {Type: "string", Enum: []interface{}{"host", "ingress"}},
						},
						AdditionalProperties: False,
					},
				},
			},
			"mount": {
				AnyOf: []*Schema{
					{Type: "string", MinLength: intPtr(1)},
					{
						Type:     "object",
						Required: []string{"target"},
						Properties: map[string]*Schema{
							"type":      {Type: "string", Enum: []interface{}{"volume", "bind", "tmpfs"}},
							"source":    {Type: "string"},
							"target":    {Type: "string", Pattern: "^/"},
							"read_only": {Type: "boolean"},
							"bind":      {Type: "object"},
							"volume":    {Type: "object"},
							"tmpfs":     {Type: "object"},
						},
						AdditionalProperties: False,
					},
				},
			},
			"depends_on": {
				AnyOf: []*Schema{
					stringList(),
					{
						Type: "object",
						AdditionalProperties: &Schema{
							Type: "object",
							Properties: map[string]*Schema{
								"condition": {
									Type: "string",
									Enum: []interface{}{"service_started", "service_healthy", "service_completed_successfully"},
								},
								"restart":  {Type: "boolean"},
								"required": {Type: "boolean"},
							},
							AdditionalProperties: False,
						},
					},
				},
			},
			"healthcheck": {
				Type: "object",
				Properties: map[string]*Schema{
					"test":         stringOrList(),
					"interval":     {Type: "string"},
					"timeout":      {Type: "string"},
					"retries":      {Type: "integer", Minimum: floatPtr(0)},
					"start_period": {Type: "string"},
					"disable":      {Type: "boolean"},
				},
				AdditionalProperties: False,
			},
			"volume": {
				Type: "object",
				Properties: map[string]*Schema{
					"name":        {Type: "string"},
					"driver":      {Type: "string"},
					"driver_opts": {Type: "object"},
					"external":    {Type: "boolean"},
					"labels":      listOrDict(),
				},
				PatternProperties:    extensions,
				AdditionalProperties: False,
			},
		},
	}
}

// GenerateOverrideSchema generates the schema for compose files merged over
// the first one. Overrides may leave out services or declare none.
func GenerateOverrideSchema() *Schema {
	s := GenerateSchema()
	s.Required = nil
	s.Properties["services"].MinProperties = nil
	return s
}
