package profile

import (
	"fmt"

	"github.com/automatosx/automatosx/pkg/registry"
)

// RegistryLoader is an in-memory Loader backed by registry.BaseRegistry.
// It does not parse any on-disk format: profiles are registered
// programmatically (by an embedding program, a test, or cmd/automatosx's
// own startup wiring), matching spec §1's "no config-file-parsing logic"
// non-goal while still giving the core a concrete Loader to run against.
type RegistryLoader struct {
	profiles *registry.BaseRegistry[*Profile]
}

// NewRegistryLoader returns an empty RegistryLoader. Callers register
// profiles with Register before the loader is used.
func NewRegistryLoader() *RegistryLoader {
	return &RegistryLoader{profiles: registry.NewBaseRegistry[*Profile]()}
}

// Register adds or replaces p under its canonical name.
func (l *RegistryLoader) Register(p *Profile) error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	return l.profiles.Replace(p.Name, p)
}

// Load implements Loader.
func (l *RegistryLoader) Load(name string) (*Profile, error) {
	p, ok := l.profiles.Get(name)
	if !ok {
		return nil, fmt.Errorf("agent not found: %s", name)
	}
	return p, nil
}

// Names implements Loader.
func (l *RegistryLoader) Names() []string {
	return l.profiles.Names()
}

// RegistryAbilityLoader is an in-memory AbilityLoader backed by
// registry.BaseRegistry, the ability-text counterpart to RegistryLoader.
type RegistryAbilityLoader struct {
	abilities *registry.BaseRegistry[string]
}

// NewRegistryAbilityLoader returns an empty RegistryAbilityLoader.
func NewRegistryAbilityLoader() *RegistryAbilityLoader {
	return &RegistryAbilityLoader{abilities: registry.NewBaseRegistry[string]()}
}

// Register adds or replaces the text content for the named ability.
func (l *RegistryAbilityLoader) Register(name, content string) error {
	if name == "" {
		return fmt.Errorf("ability name is required")
	}
	return l.abilities.Replace(name, content)
}

// Load implements AbilityLoader.
func (l *RegistryAbilityLoader) Load(name string) (string, error) {
	content, ok := l.abilities.Get(name)
	if !ok {
		return "", fmt.Errorf("ability not found: %s", name)
	}
	return content, nil
}
