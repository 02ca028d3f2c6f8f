package template

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sipico/magic-links/internal/token"
)

// File is the YAML document describing templates.
type File struct {
	Templates []Definition `yaml:"templates"`
}

// Definition is one template entry of a File.
type Definition struct {
	Name        string            `yaml:"name"`
	Pattern     string            `yaml:"pattern"`
	Strength    string            `yaml:"strength"`
	Expiry      string            `yaml:"expiry"`
	ActionScope token.ActionScope `yaml:"action_scope"`
}

// LoadFile registers the templates defined in the YAML file at path.
func (r *Registry) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open templates file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	if err := r.Load(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Load registers the templates defined in a YAML document.
// Nothing is registered if any definition is invalid.
func (r *Registry) Load(src io.Reader) error {
	var file File
	dec := yaml.NewDecoder(src)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse templates: %w", err)
	}

	templates := make([]*Template, 0, len(file.Templates))
	for i, def := range file.Templates {
		t, err := def.build()
		if err != nil {
			return fmt.Errorf("template #%d: %w", i+1, err)
		}
		templates = append(templates, t)
	}

	for _, t := range templates {
		if _, err := r.Register(t.Name, t.Pattern, t.ActionScope, t.Strength, t.Expiry); err != nil {
			return err
		}
	}
	return nil
}

func (d Definition) build() (*Template, error) {
	strength, err := token.ParseStrength(d.Strength)
	if err != nil {
		return nil, err
	}

	var expiry time.Duration
	if d.Expiry != "" {
		expiry, err = time.ParseDuration(d.Expiry)
		if err != nil {
			return nil, fmt.Errorf("invalid expiry %q: %w", d.Expiry, err)
		}
	}

	return New(d.Name, d.Pattern, d.ActionScope, strength, expiry)
}
