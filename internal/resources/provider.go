// Package resources provides read-only lookup of static documents and
// prompt templates by logical name. Content is immutable after load; the
// provider is safe for concurrent reads.
package resources

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

//go:embed defaults
var defaultFS embed.FS

const resourceScheme = "context://"

// Provider resolves context:// resource URIs and named prompt templates.
// Built-in defaults are embedded in the binary; a directory can override
// them file by file.
type Provider struct {
	overrideDir string
}

// NewProvider creates a provider. overrideDir is optional; when set, files
// under it shadow the embedded defaults (resources at the top level,
// prompts under prompts/).
func NewProvider(overrideDir string) *Provider {
	return &Provider{overrideDir: overrideDir}
}

// Resource returns the document for a context:// URI.
func (p *Provider) Resource(uri string) (string, error) {
	name, ok := strings.CutPrefix(uri, resourceScheme)
	if !ok || name == "" {
		return "", fmt.Errorf("unknown resource URI %q", uri)
	}
	return p.load(name + ".md")
}

// Prompt returns a named prompt template.
func (p *Provider) Prompt(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty prompt name")
	}
	return p.load(filepath.Join("prompts", name+".txt"))
}

func (p *Provider) load(rel string) (string, error) {
	// Reject names that could escape the override directory.
	if strings.Contains(rel, "..") {
		return "", fmt.Errorf("invalid document name %q", rel)
	}

	if p.overrideDir != "" {
		if data, err := os.ReadFile(filepath.Join(p.overrideDir, rel)); err == nil {
			return string(data), nil
		}
	}

	data, err := defaultFS.ReadFile("defaults/" + filepath.ToSlash(rel))
	if err != nil {
		return "", fmt.Errorf("document %q not found", rel)
	}
	return string(data), nil
}
