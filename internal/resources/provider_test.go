package resources

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestProviderEmbeddedDefaults(t *testing.T) {
	p := NewProvider("")

	schema, err := p.Resource("context://db_schema")
	if err != nil {
		t.Fatalf("Resource() error: %v", err)
	}
	if !strings.Contains(schema, "orders") {
		t.Errorf("schema missing orders table: %q", schema)
	}

	glossary, err := p.Resource("context://business_glossary")
	if err != nil {
		t.Fatalf("Resource() error: %v", err)
	}
	if !strings.Contains(glossary, "revenue") {
		t.Errorf("glossary = %q", glossary)
	}

	for _, name := range []string{"chat_planner", "sql_generate", "file_list", "external_knowledge", "ledger"} {
		if _, err := p.Prompt(name); err != nil {
			t.Errorf("Prompt(%s) error: %v", name, err)
		}
	}
}

func TestProviderUnknownNames(t *testing.T) {
	p := NewProvider("")

	if _, err := p.Resource("context://nope"); err == nil {
		t.Error("expected error for unknown resource")
	}
	if _, err := p.Resource("file:///etc/passwd"); err == nil {
		t.Error("expected error for non-context URI")
	}
	if _, err := p.Prompt("missing"); err == nil {
		t.Error("expected error for unknown prompt")
	}
	if _, err := p.Prompt("../db_schema"); err == nil {
		t.Error("expected error for traversal in prompt name")
	}
}

func TestProviderOverrideDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "db_schema.md"), []byte("custom schema"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewProvider(dir)

	schema, err := p.Resource("context://db_schema")
	if err != nil {
		t.Fatalf("Resource() error: %v", err)
	}
	if schema != "custom schema" {
		t.Errorf("schema = %q, want override", schema)
	}

	// Documents without an override fall back to the embedded copy.
	if _, err := p.Resource("context://business_glossary"); err != nil {
		t.Errorf("fallback failed: %v", err)
	}
}
