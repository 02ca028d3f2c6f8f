package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// ErrInvalidScope is returned for structurally invalid action scopes.
var ErrInvalidScope = errors.New("invalid action scope")

// Actions is the list of actions permitted on one resource.
// It decodes from either a single string or a list of strings.
type Actions []string

// UnmarshalJSON accepts "show" as well as ["show", "edit"].
func (a *Actions) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*a = Actions{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("actions must be a string or a list of strings: %w", err)
	}
	*a = list
	return nil
}

// UnmarshalYAML accepts a scalar as well as a sequence.
func (a *Actions) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*a = Actions{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*a = list
		return nil
	default:
		return fmt.Errorf("line %d: actions must be a string or a list of strings", node.Line)
	}
}

// ActionScope maps a resource (controller-like identifier) to its permitted actions.
type ActionScope map[string]Actions

// Validate checks the structure: at least one resource, no empty names,
// at least one action per resource.
func (s ActionScope) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: no resources", ErrInvalidScope)
	}
	for resource, actions := range s {
		if strings.TrimSpace(resource) == "" {
			return fmt.Errorf("%w: empty resource name", ErrInvalidScope)
		}
		if len(actions) == 0 {
			return fmt.Errorf("%w: resource %q has no actions", ErrInvalidScope, resource)
		}
		for _, action := range actions {
			if strings.TrimSpace(action) == "" {
				return fmt.Errorf("%w: resource %q has an empty action", ErrInvalidScope, resource)
			}
		}
	}
	return nil
}

// PermitsResource reports whether resource is a key of the scope.
func (s ActionScope) PermitsResource(resource string) bool {
	_, ok := s[resource]
	return ok
}

// Permits reports whether action is allowed on resource.
func (s ActionScope) Permits(resource, action string) bool {
	actions, ok := s[resource]
	if !ok {
		return false
	}
	return slices.Contains(actions, action)
}

// Clone returns a deep copy, so issued tokens don't share state with their template.
func (s ActionScope) Clone() ActionScope {
	if s == nil {
		return nil
	}
	out := make(ActionScope, len(s))
	for resource, actions := range s {
		out[resource] = slices.Clone(actions)
	}
	return out
}

// Resources returns the resource names in sorted order.
func (s ActionScope) Resources() []string {
	resources := make([]string, 0, len(s))
	for resource := range s {
		resources = append(resources, resource)
	}
	sort.Strings(resources)
	return resources
}

// toMap converts the scope into its storage representation.
func (s ActionScope) toMap() map[string][]string {
	out := make(map[string][]string, len(s))
	for resource, actions := range s {
		out[resource] = slices.Clone(actions)
	}
	return out
}

// scopeFromMap converts the storage representation into an ActionScope.
func scopeFromMap(m map[string][]string) ActionScope {
	out := make(ActionScope, len(m))
	for resource, actions := range m {
		out[resource] = Actions(slices.Clone(actions))
	}
	return out
}

// ScopeName derives the lowercase scope identifier of a principal type.
// "User" -> "user", "AdminUser" -> "admin_user", "Admin::User" -> "admin_user".
func ScopeName(principalType string) string {
	var b strings.Builder
	prevLower := false
	pendingSep := false

	for _, r := range principalType {
		switch {
		case unicode.IsUpper(r):
			if (prevLower || pendingSep) && b.Len() > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			prevLower, pendingSep = false, false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			prevLower, pendingSep = true, false
		default:
			// "::", ".", "/", "-", "_" and spaces all separate words
			pendingSep = true
			prevLower = false
		}
	}

	return b.String()
}
