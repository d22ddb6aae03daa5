// Package outline validates and reads the book outline document that a
// caller submits to start a generation run.
package outline

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Outline is the parsed outline document.
type Outline struct {
	Title    string    `json:"title"`
	Author   string    `json:"author,omitempty"`
	Genre    string    `json:"genre,omitempty"`
	Synopsis string    `json:"synopsis,omitempty"`
	Chapters []Chapter `json:"chapters"`
}

// Chapter is one planned chapter in the outline.
type Chapter struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Summary string `json:"summary,omitempty"`
}

const schemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["title", "chapters"],
	"properties": {
		"title": {"type": "string", "minLength": 1},
		"author": {"type": "string"},
		"genre": {"type": "string"},
		"synopsis": {"type": "string"},
		"chapters": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["number", "title"],
				"properties": {
					"number": {"type": "integer", "minimum": 1},
					"title": {"type": "string", "minLength": 1},
					"summary": {"type": "string"}
				}
			}
		}
	}
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("outline.json", strings.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("failed to load outline schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("outline.json")
	})
	return schema, schemaErr
}

// Parse validates the outline document against the schema and decodes it.
func Parse(data json.RawMessage) (*Outline, error) {
	s, err := compiledSchema()
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("outline is not valid JSON: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return nil, fmt.Errorf("outline does not match schema: %w", err)
	}

	var o Outline
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to decode outline: %w", err)
	}
	return &o, nil
}
