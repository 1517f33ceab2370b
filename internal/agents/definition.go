// Package agents loads agent definitions from YAML files and runs them
// through the router.
package agents

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/perculacms/aicore/internal/types"
)

// Definition is one agent loaded from <dir>/<id>.yml.
type Definition struct {
	ID          string           `yaml:"-" json:"id"`
	Name        string           `yaml:"name" json:"name"`
	Description string           `yaml:"description" json:"description,omitempty"`
	Provider    string           `yaml:"provider" json:"-"`
	VendorType  types.VendorType `yaml:"-" json:"vendor_type"`
	Model       string           `yaml:"model" json:"model"`
	Role        string           `yaml:"role" json:"role"`
	Task        string           `yaml:"task" json:"task"`
	// Parameters and Cache are carried for callers; the router ignores them.
	Parameters map[string]any `yaml:"parameters" json:"parameters,omitempty"`
	Cache      map[string]any `yaml:"cache" json:"cache,omitempty"`
}

// ParseFile reads and validates one agent file. The id is the file name
// without its extension.
func ParseFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent file %s: %w", path, err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse agent file %s: %w", path, err)
	}

	def.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	required := []struct{ field, value string }{
		{"role", def.Role},
		{"task", def.Task},
		{"provider", def.Provider},
		{"model", def.Model},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return nil, fmt.Errorf("agent file %s: missing required field %q", path, r.field)
		}
	}

	vt, ok := types.ParseVendorType(def.Provider)
	if !ok {
		return nil, fmt.Errorf("agent file %s: unknown provider %q", path, def.Provider)
	}
	def.VendorType = vt
	if def.Name == "" {
		def.Name = def.ID
	}
	return &def, nil
}
