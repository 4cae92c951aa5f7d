package generator

import (
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/project-ncl/sbomer-sub004/internal/execution"
)

// Config holds the generator configuration.
// Quantities use the Kubernetes notation, e.g. "500m" or "1Gi".
type Config struct {
	ServiceAccount string        `env:"SERVICE_ACCOUNT" envDefault:"sbomer"`
	Timeout        time.Duration `env:"TIMEOUT" envDefault:"6h" validate:"gt=0"`
	CPURequest     string        `env:"CPU_REQUEST" envDefault:"500m" validate:"required"`
	MemoryRequest  string        `env:"MEMORY_REQUEST" envDefault:"1Gi" validate:"required"`
	CPULimit       string        `env:"CPU_LIMIT" envDefault:"1" validate:"required"`
	MemoryLimit    string        `env:"MEMORY_LIMIT" envDefault:"2Gi" validate:"required"`
	SBOMRootDir    string        `env:"SBOM_ROOT_DIR" envDefault:"/var/lib/sbomer" validate:"required"`

	CycloneDXInitImage string `env:"CYCLONEDX_INIT_IMAGE" envDefault:"quay.io/sbomer/build-config-resolver:latest"`
	CycloneDXImage     string `env:"CYCLONEDX_IMAGE" envDefault:"quay.io/sbomer/generator-cyclonedx:latest"`
	SyftImage          string `env:"SYFT_IMAGE" envDefault:"quay.io/sbomer/generator-syft:latest"`
	RPMImage           string `env:"RPM_IMAGE" envDefault:"quay.io/sbomer/generator-rpm:latest"`
}

// Policy holds the fixed values every desired spec is built with.
type Policy struct {
	ServiceAccount   string
	Timeout          time.Duration
	Resources        execution.ResourceRequirements
	MemoryMultiplier float64
	SBOMRootDir      string
}

// NewPolicy parses the quantities of cfg.
func NewPolicy(cfg *Config, memoryMultiplier float64) (*Policy, error) {
	quantities := make([]resource.Quantity, 4)
	for i, s := range []string{cfg.CPURequest, cfg.MemoryRequest, cfg.CPULimit, cfg.MemoryLimit} {
		q, err := resource.ParseQuantity(s)
		if err != nil {
			return nil, fmt.Errorf("generator.NewPolicy: %q: %w", s, err)
		}
		quantities[i] = q
	}

	return &Policy{
		ServiceAccount: cfg.ServiceAccount,
		Timeout:        cfg.Timeout,
		Resources: execution.ResourceRequirements{
			Requests: execution.ResourceList{CPU: quantities[0], Memory: quantities[1]},
			Limits:   execution.ResourceList{CPU: quantities[2], Memory: quantities[3]},
		},
		MemoryMultiplier: memoryMultiplier,
		SBOMRootDir:      cfg.SBOMRootDir,
	}, nil
}
