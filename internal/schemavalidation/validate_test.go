package schemavalidation

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"voxd/internal/config"
)

func TestConfigFixtureMatchesSchema(t *testing.T) {
	root := repoRoot(t)
	schemaPath := filepath.Join(root, "docs", "schema", "config-v2.schema.json")
	instancePath := filepath.Join(root, "docs", "spec", "fixtures", "config-v2.json")

	schema := compileSchema(t, schemaPath)

	instanceData, err := os.ReadFile(instancePath)
	if err != nil {
		t.Fatalf("read instance: %v", err)
	}
	var instance any
	if err := json.Unmarshal(instanceData, &instance); err != nil {
		t.Fatalf("unmarshal instance: %v", err)
	}
	if err := schema.Validate(instance); err != nil {
		t.Fatalf("schema validation failed for %s: %v", filepath.Base(instancePath), err)
	}
}

// The defaults must always satisfy the published schema; drift here means
// either the schema or DefaultConfig changed without the other.
func TestDefaultConfigMatchesSchema(t *testing.T) {
	root := repoRoot(t)
	schema := compileSchema(t, filepath.Join(root, "docs", "schema", "config-v2.schema.json"))

	data, err := json.Marshal(config.DefaultConfig())
	if err != nil {
		t.Fatalf("marshal default config: %v", err)
	}
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		t.Fatalf("unmarshal default config: %v", err)
	}
	if err := schema.Validate(instance); err != nil {
		t.Fatalf("default config violates schema: %v", err)
	}
}

func compileSchema(t *testing.T, schemaPath string) *jsonschema.Schema {
	t.Helper()
	schemaData, err := os.ReadFile(schemaPath)
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaPath, bytes.NewReader(schemaData)); err != nil {
		t.Fatalf("add schema resource: %v", err)
	}
	schema, err := compiler.Compile(schemaPath)
	if err != nil {
		t.Fatalf("compile schema: %v", err)
	}
	return schema
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot determine caller path")
	}
	return filepath.Dir(filepath.Dir(filepath.Dir(file)))
}
