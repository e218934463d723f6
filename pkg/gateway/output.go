package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	providertypes "themeforge/pkg/provider/types"
	"themeforge/pkg/theme"
)

// resultSchema is the shape the system prompt asks the model to reply with.
const resultSchema = `{
	"type": "object",
	"required": ["text", "theme"],
	"properties": {
		"text": {"type": "string"},
		"theme": {
			"type": "object",
			"properties": {
				"light": {"$ref": "#/$defs/styleMap"},
				"dark": {"$ref": "#/$defs/styleMap"}
			}
		}
	},
	"$defs": {
		"styleMap": {
			"type": "object",
			"additionalProperties": {"type": "string"}
		}
	}
}`

var errNoJSONObject = errors.New("model output contains no JSON object")

type resultParser struct {
	schema *jsonschema.Schema
}

func newResultParser() (*resultParser, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("result.json", strings.NewReader(resultSchema)); err != nil {
		return nil, fmt.Errorf("add result schema: %w", err)
	}
	schema, err := compiler.Compile("result.json")
	if err != nil {
		return nil, fmt.Errorf("compile result schema: %w", err)
	}
	return &resultParser{schema: schema}, nil
}

// Parse extracts the generated theme from raw model text. Code fences and any
// prose around the outermost JSON object are ignored. Spacing tokens are
// dropped since the editor never takes them from generation.
func (p *resultParser) Parse(raw string) (providertypes.Result, error) {
	object, err := extractJSONObject(raw)
	if err != nil {
		return providertypes.Result{}, err
	}

	var doc any
	if err := json.Unmarshal(object, &doc); err != nil {
		return providertypes.Result{}, fmt.Errorf("decode model output: %w", err)
	}
	if err := p.schema.Validate(doc); err != nil {
		return providertypes.Result{}, fmt.Errorf("model output does not match result schema: %w", err)
	}

	var result providertypes.Result
	if err := json.Unmarshal(object, &result); err != nil {
		return providertypes.Result{}, fmt.Errorf("decode model output: %w", err)
	}
	result.Text = strings.TrimSpace(result.Text)
	if result.Theme.Light == nil {
		result.Theme.Light = theme.StyleMap{}
	}
	if result.Theme.Dark == nil {
		result.Theme.Dark = theme.StyleMap{}
	}
	delete(result.Theme.Light, "spacing")
	delete(result.Theme.Dark, "spacing")
	return result, nil
}

func extractJSONObject(raw string) ([]byte, error) {
	text := strings.TrimSpace(raw)
	if body, ok := strings.CutPrefix(text, "```"); ok {
		body = strings.TrimPrefix(body, "json")
		body, _, _ = strings.Cut(body, "```")
		text = strings.TrimSpace(body)
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return nil, errNoJSONObject
	}
	return bytes.TrimSpace([]byte(text[start : end+1])), nil
}
