package app

import (
	"fmt"

	dockerengine "dockbox/internal/engine"
	"dockbox/pkg/engine"
)

// EngineFactory provides container engine implementations based on string
// identifiers. This decouples the application orchestrator from concrete
// engine bindings.
type EngineFactory struct{}

// NewEngineFactory creates a new instance of EngineFactory.
func NewEngineFactory() *EngineFactory {
	return &EngineFactory{}
}

// GetEngine returns the container engine implementation for the given
// provider name. An empty name selects Docker.
func (f *EngineFactory) GetEngine(providerName string) (engine.ContainerEngine, error) {
	switch providerName {
	case "", "docker":
		eng, err := dockerengine.NewDockerEngine()
		if err != nil {
			return nil, fmt.Errorf("failed to create Docker engine: %w", err)
		}
		return eng, nil
	default:
		return nil, fmt.Errorf("unsupported container engine: %s", providerName)
	}
}
