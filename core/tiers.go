package core

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/framewright/provision/contracts"
)

// TierMap is the human-edited mapping from capability tiers (free,
// balanced, pro, ...) to the capabilities each tier depends on.
type TierMap struct {
	Tiers map[string]TierDefinition `yaml:"tiers"`
}

type TierDefinition struct {
	Description  string   `yaml:"description,omitempty"`
	Capabilities []string `yaml:"capabilities"`
}

func ParseTierMap(raw []byte) (TierMap, error) {
	var tiers TierMap
	err := yaml.Unmarshal(raw, &tiers)
	if err != nil {
		return TierMap{}, fmt.Errorf("malformed tier map: %w", err)
	}
	return tiers, nil
}

// TierResolver decides which manifest components are mandatory for a
// selected tier. It only annotates; it never triggers installation.
type TierResolver struct {
	tiers TierMap
}

func NewTierResolver(tiers TierMap) *TierResolver {
	return &TierResolver{tiers: tiers}
}

// RequiredComponents returns the names of components mandatory for the
// tier: those flagged required whose capability (if any) the tier uses.
func (this *TierResolver) RequiredComponents(tier string, components []contracts.ComponentManifest) ([]string, error) {
	definition, found := this.tiers.Tiers[tier]
	if !found {
		return nil, fmt.Errorf("unknown tier: %q", tier)
	}
	capabilities := make(map[string]struct{}, len(definition.Capabilities))
	for _, capability := range definition.Capabilities {
		capabilities[capability] = struct{}{}
	}

	var required []string
	for _, component := range components {
		if !component.IsRequired {
			continue
		}
		if component.Capability != "" {
			if _, used := capabilities[component.Capability]; !used {
				continue
			}
		}
		required = append(required, component.Name)
	}
	return required, nil
}
