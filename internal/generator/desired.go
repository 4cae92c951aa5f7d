package generator

import (
	"path"
	"path/filepath"
	"strconv"

	"github.com/project-ncl/sbomer-sub004/internal/execution"
	"github.com/project-ncl/sbomer-sub004/internal/generation"
	"github.com/project-ncl/sbomer-sub004/internal/retry"
)

const (
	workspaceName      = "data"
	workspaceMountPath = "/workspace"

	ParamTargetType       = "TARGET_TYPE"
	ParamTargetIdentifier = "TARGET_IDENTIFIER"
	ParamGeneratorName    = "GENERATOR_NAME"
	ParamGeneratorVersion = "GENERATOR_VERSION"
	ParamGeneratorConfig  = "GENERATOR_CONFIG"
	ParamOutputDir        = "OUTPUT_DIR"
)

// Task is what a generator runs in one phase.
type Task struct {
	Image   string
	Name    string // names the output directory
	Version string
	Params  []execution.Param
}

// Desired returns the spec of attempt of the phase of g.
// It has no side effects: equal arguments produce equal specs.
func Desired(p *Policy, g *generation.Generation, phase execution.Phase, attempt int, task *Task) *execution.Spec {
	params := []execution.Param{
		{Name: ParamTargetType, Value: string(g.Target.Type)},
		{Name: ParamTargetIdentifier, Value: g.Target.Identifier},
		{Name: ParamGeneratorName, Value: task.Name},
		{Name: ParamGeneratorVersion, Value: task.Version},
		{Name: ParamOutputDir, Value: path.Join(workspaceMountPath, outputDirName(phase, task))},
	}
	if len(g.Generator.Config) > 0 {
		params = append(params, execution.Param{Name: ParamGeneratorConfig, Value: string(g.Generator.Config)})
	}
	params = append(params, task.Params...)

	requests := p.Resources.Requests
	limits := p.Resources.Limits

	return &execution.Spec{
		Name:     execution.Name(g.ID, phase, attempt),
		OwnerRef: execution.OwnerReference{GenerationID: g.ID},
		Phase:    phase,
		Annotations: map[string]string{
			execution.AnnotationRetryAttempt: strconv.Itoa(attempt),
			execution.AnnotationRetryCount:   strconv.Itoa(g.RetryCount),
		},
		ServiceAccount: p.ServiceAccount,
		Timeout:        p.Timeout,
		Params:         params,
		Resources: execution.ResourceRequirements{
			Requests: execution.ResourceList{
				CPU:    requests.CPU.DeepCopy(),
				Memory: retry.ScaleMemory(requests.Memory, p.MemoryMultiplier, attempt),
			},
			Limits: execution.ResourceList{
				CPU:    limits.CPU.DeepCopy(),
				Memory: retry.ScaleMemory(limits.Memory, p.MemoryMultiplier, attempt),
			},
		},
		WorkspaceBinding: execution.WorkspaceBinding{
			Name:      workspaceName,
			HostPath:  WorkDir(p, g),
			MountPath: workspaceMountPath,
		},
		TaskRef: task.Image,
	}
}

// WorkDir returns the host directory the jobs of g write to.
func WorkDir(p *Policy, g *generation.Generation) string {
	return filepath.Join(p.SBOMRootDir, g.ID.String())
}

func outputDirName(phase execution.Phase, task *Task) string {
	if phase == execution.PhaseInit {
		return initDirName
	}
	return task.Name
}
