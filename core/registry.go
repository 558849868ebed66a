package core

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/smartystreets/logging"

	"github.com/framewright/provision/contracts"
)

// ManifestRegistry loads component definitions and serves read access.
// Reloads swap the whole listing atomically; readers never observe a
// partially-updated set.
type ManifestRegistry struct {
	source contracts.ManifestSource
	logger *logging.Logger

	mutex sync.RWMutex
	index map[string]contracts.ComponentManifest
	order []string
}

func NewManifestRegistry(source contracts.ManifestSource) *ManifestRegistry {
	return &ManifestRegistry{source: source}
}

func (this *ManifestRegistry) Load() error {
	raw, err := this.source.FetchManifest()
	if err != nil {
		return fmt.Errorf("%w: %s", contracts.ManifestUnavailable, err)
	}
	var listing contracts.ComponentListing
	err = json.Unmarshal(raw, &listing)
	if err != nil {
		return fmt.Errorf("%w: malformed document: %s", contracts.ManifestUnavailable, err)
	}
	err = listing.Validate()
	if err != nil {
		return err
	}

	index := make(map[string]contracts.ComponentManifest, len(listing.Components))
	order := make([]string, 0, len(listing.Components))
	for _, component := range listing.Components {
		index[component.Name] = component
		order = append(order, component.Name)
	}

	this.mutex.Lock()
	this.index = index
	this.order = order
	this.mutex.Unlock()

	this.logger.Printf("[INFO] Manifest loaded with %d components.", len(order))
	return nil
}

// Components returns manifests in document order.
func (this *ManifestRegistry) Components() []contracts.ComponentManifest {
	this.mutex.RLock()
	defer this.mutex.RUnlock()
	listing := make([]contracts.ComponentManifest, 0, len(this.order))
	for _, name := range this.order {
		listing = append(listing, this.index[name])
	}
	return listing
}

func (this *ManifestRegistry) Component(name string) (contracts.ComponentManifest, error) {
	this.mutex.RLock()
	defer this.mutex.RUnlock()
	component, found := this.index[name]
	if !found {
		return contracts.ComponentManifest{}, fmt.Errorf("%w: %q", contracts.ComponentUnknown, name)
	}
	return component, nil
}
