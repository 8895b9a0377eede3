package schema

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

var knownTypes = map[string]bool{
	"object":  true,
	"string":  true,
	"number":  true,
	"integer": true,
	"boolean": true,
	"array":   true,
}

// CheckDeclaration structurally verifies a schema declaration against the
// supported subset. Issues are advisory at registration time; runtime
// validation simply ignores constructs it does not understand.
func CheckDeclaration(schema map[string]any, path string) []string {
	if schema == nil {
		return nil
	}

	var issues []string

	if rawType, present := schema["type"]; present {
		typ, ok := rawType.(string)
		if !ok {
			issues = append(issues, fmt.Sprintf("%s.type: expected string, got %s", path, typeName(rawType)))
		} else if !knownTypes[typ] {
			issues = append(issues, fmt.Sprintf("%s.type: unsupported type %q", path, typ))
		}
	}

	for _, key := range []string{"$ref", "anyOf", "oneOf", "allOf"} {
		if _, present := schema[key]; present {
			issues = append(issues, fmt.Sprintf("%s: %s is not supported by the subset validator", path, key))
		}
	}

	if rawProps, present := schema["properties"]; present {
		props, ok := rawProps.(map[string]any)
		if !ok {
			issues = append(issues, fmt.Sprintf("%s.properties: expected object, got %s", path, typeName(rawProps)))
		} else {
			for name, rawProp := range props {
				prop, ok := rawProp.(map[string]any)
				if !ok {
					issues = append(issues, fmt.Sprintf("%s.properties.%s: expected object, got %s", path, name, typeName(rawProp)))
					continue
				}
				issues = append(issues, CheckDeclaration(prop, path+".properties."+name)...)
			}
		}
	}

	if rawItems, present := schema["items"]; present {
		items, ok := rawItems.(map[string]any)
		if !ok {
			issues = append(issues, fmt.Sprintf("%s.items: expected object, got %s", path, typeName(rawItems)))
		} else {
			issues = append(issues, CheckDeclaration(items, path+".items")...)
		}
	}

	if rawRequired, present := schema["required"]; present {
		if _, ok := rawRequired.([]any); !ok {
			if _, ok := rawRequired.([]string); !ok {
				issues = append(issues, fmt.Sprintf("%s.required: expected array of strings, got %s", path, typeName(rawRequired)))
			}
		}
	}

	return issues
}

// Compile verifies that the declaration is well-formed JSON Schema. It is
// an early-warning check at registration time only; runtime validation is
// the subset validator, not the compiled schema.
func Compile(schema map[string]any) error {
	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("Compile: marshal: %w", err)
	}

	var doc any
	if err := json.Unmarshal(schemaBytes, &doc); err != nil {
		return fmt.Errorf("Compile: unmarshal: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("declaration.json", doc); err != nil {
		return fmt.Errorf("Compile: %w", err)
	}
	if _, err := c.Compile("declaration.json"); err != nil {
		return fmt.Errorf("Compile: %w", err)
	}
	return nil
}
