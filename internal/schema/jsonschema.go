package schema

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// ManifestSchema describes the shape of a serialized manifest (spec.md
// §3.6, §4.1 "serialization"): a JSON object whose top-level entries are
// themselves JSON objects. Nothing deeper is constrained; leaf parameter
// records are not checked for "type" or "value" fields.
var ManifestSchema = &jsonschema.Schema{
	Type: "object",
	AdditionalProperties: &jsonschema.Schema{
		Type: "object",
	},
}

// ValidateManifest checks a serialized manifest (as produced by ToMap) against
// ManifestSchema, resolving the schema on every call. The orchestrator and
// task runner do not call it when they read manifests.
func ValidateManifest(doc interface{}) error {
	resolved, err := ManifestSchema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("resolve manifest schema: %w", err)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	var instance interface{}
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("unmarshal manifest: %w", err)
	}

	if err := resolved.Validate(instance); err != nil {
		return fmt.Errorf("manifest does not conform to schema: %w", err)
	}
	return nil
}

// FromMap rebuilds a Node subtree from a decoded manifest map, the inverse
// of ToMap, used when importing another run's exported manifest.
func FromMap(v interface{}) (*Node, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		if isParamRecord(val) {
			return paramFromMap(val)
		}
		out := newBranch()
		for k, child := range val {
			node, err := FromMap(child)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out.Children[k] = node
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected manifest node of type %T", v)
	}
}

func isParamRecord(m map[string]interface{}) bool {
	_, hasType := m["type"]
	_, hasValue := m["value"]
	return hasType && hasValue
}

func paramFromMap(m map[string]interface{}) (*Node, error) {
	p := &Param{}
	if t, ok := m["type"].(string); ok {
		p.Type = Type(t)
	}
	p.Value = toStrings(m["value"])
	p.DefValue = toStrings(m["defvalue"])
	if r, ok := m["require"].(string); ok {
		p.Require = r
	}
	if l, ok := m["lock"].(bool); ok {
		p.Lock = l
	}
	if c, ok := m["copy"].(bool); ok {
		p.Copy = c
	}
	p.Switch = toStrings(m["switch"])
	if sh, ok := m["shorthelp"].(string); ok {
		p.ShortHelp = sh
	}
	if h, ok := m["help"].(string); ok {
		p.Help = h
	}
	p.Example = toStrings(m["example"])
	p.FileHash = toStrings(m["filehash"])
	p.Signature = toStrings(m["signature"])
	p.Date = toStrings(m["date"])
	p.Author = toStrings(m["author"])
	if ha, ok := m["hashalgo"].(string); ok {
		p.HashAlgo = ha
	}
	p.IsList = len(p.Value) > 1 || len(p.DefValue) > 1
	return &Node{Param: p}, nil
}

func toStrings(v interface{}) []string {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		} else {
			out = append(out, fmt.Sprintf("%v", item))
		}
	}
	return out
}
