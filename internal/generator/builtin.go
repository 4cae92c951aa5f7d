package generator

import (
	"fmt"

	"github.com/project-ncl/sbomer-sub004/internal/execution"
	"github.com/project-ncl/sbomer-sub004/internal/generation"
)

const (
	NameCycloneDX = "cyclonedx"
	NameSyft      = "syft"
	NameRPM       = "rpm"
)

// NewCycloneDX returns the generator of builds. Its init job resolves
// the build configuration before the manifests are generated.
func NewCycloneDX(cfg *Config, policy *Policy, collector Collector) *InitContainer {
	return &InitContainer{
		Container: &Container{
			name:      NameCycloneDX,
			version:   "2.7.11",
			types:     []generation.TargetType{generation.TargetTypeBuild},
			image:     cfg.CycloneDXImage,
			policy:    policy,
			collector: collector,
		},
		initImage: cfg.CycloneDXInitImage,
	}
}

func NewSyft(cfg *Config, policy *Policy, collector Collector) *Container {
	return &Container{
		name:    NameSyft,
		version: "1.14.0",
		types:   []generation.TargetType{generation.TargetTypeContainerImage},
		image:   cfg.SyftImage,
		params: func(g *generation.Generation) []execution.Param {
			return []execution.Param{{Name: "SYFT_OUTPUT", Value: "cyclonedx-json"}}
		},
		policy:    policy,
		collector: collector,
	}
}

func NewRPM(cfg *Config, policy *Policy, collector Collector) *Container {
	return &Container{
		name:      NameRPM,
		version:   "1.0.0",
		types:     []generation.TargetType{generation.TargetTypeBrewRPM},
		image:     cfg.RPMImage,
		policy:    policy,
		collector: collector,
	}
}

// NewBuiltinRegistry returns a registry with every built-in generator.
func NewBuiltinRegistry(cfg *Config, policy *Policy, collector Collector) (*Registry, error) {
	r := NewRegistry()
	generators := []Generator{
		NewCycloneDX(cfg, policy, collector),
		NewSyft(cfg, policy, collector),
		NewRPM(cfg, policy, collector),
	}
	for _, g := range generators {
		if err := r.Register(g); err != nil {
			return nil, fmt.Errorf("generator.NewBuiltinRegistry: %w", err)
		}
	}
	return r, nil
}
