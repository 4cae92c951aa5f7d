package execution

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/project-ncl/sbomer-sub004/internal/generation"
)

const (
	AnnotationRetryAttempt = "sbomer.retry-attempt"
	AnnotationRetryCount   = "sbomer.retry-count"
)

// Phase is the stage of a generation an execution resource runs.
type Phase string

const (
	PhaseInit     Phase = "init"
	PhaseGenerate Phase = "generate"
)

// Status returns the generation status held while the phase runs.
func (p Phase) Status() generation.Status {
	if p == PhaseInit {
		return generation.StatusInitializing
	}
	return generation.StatusGenerating
}

// Ordinal returns the ordinal of the phase's status.
// It is part of every resource name.
func (p Phase) Ordinal() int {
	return p.Status().Ordinal()
}

// Name returns the deterministic resource name for the generation, phase and attempt.
func Name(generationID uuid.UUID, phase Phase, attempt int) string {
	return fmt.Sprintf("generation-%s-%d-%d", generationID, phase.Ordinal(), attempt)
}

type OwnerReference struct {
	GenerationID uuid.UUID `json:"generationId"`
}

type Param struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type ResourceList struct {
	CPU    resource.Quantity `json:"cpu"`
	Memory resource.Quantity `json:"memory"`
}

type ResourceRequirements struct {
	Requests ResourceList `json:"requests"`
	Limits   ResourceList `json:"limits"`
}

// WorkspaceBinding binds HostPath into the job at MountPath.
type WorkspaceBinding struct {
	Name      string `json:"name"`
	HostPath  string `json:"hostPath"`
	MountPath string `json:"mountPath"`
}

// Spec is the desired state of one job attempt.
type Spec struct {
	Name             string               `json:"name"`
	OwnerRef         OwnerReference       `json:"ownerRef"`
	Phase            Phase                `json:"phase"`
	Annotations      map[string]string    `json:"annotations"`
	ServiceAccount   string               `json:"serviceAccount"`
	Timeout          time.Duration        `json:"timeout"`
	Params           []Param              `json:"params"`
	Resources        ResourceRequirements `json:"resources"`
	WorkspaceBinding WorkspaceBinding     `json:"workspaceBinding"`
	TaskRef          string               `json:"taskRef"`
}

// Attempt returns the retry attempt annotation.
// A missing or malformed annotation is attempt 0.
func (s *Spec) Attempt() int {
	a, err := strconv.Atoi(s.Annotations[AnnotationRetryAttempt])
	if err != nil || a < 0 {
		return 0
	}
	return a
}

// RetryCount returns the retry count of the generation when the resource
// was created. A missing or malformed annotation is 0.
func (s *Spec) RetryCount() int {
	n, err := strconv.Atoi(s.Annotations[AnnotationRetryCount])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Digest returns a hex SHA-256 of the spec's JSON encoding.
// Equal specs have equal digests.
func (s *Spec) Digest() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("execution.Spec: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

type ConditionStatus string

const (
	ConditionUnknown ConditionStatus = "Unknown"
	ConditionTrue    ConditionStatus = "True"
	ConditionFalse   ConditionStatus = "False"
)

type Condition struct {
	Status  ConditionStatus
	Reason  string
	Message string
}

type Terminated struct {
	ExitCode int
	Reason   string
}

type StepResult struct {
	Name       string
	Terminated *Terminated // nil while the step runs
}

type Status struct {
	Conditions []Condition
	Steps      []StepResult
}

// Resource is an observed job attempt.
type Resource struct {
	Spec      Spec
	CreatedAt time.Time
	Status    Status
}

// Condition returns the overall condition, Unknown if none was reported.
func (r *Resource) Condition() Condition {
	if len(r.Status.Conditions) == 0 {
		return Condition{Status: ConditionUnknown}
	}
	return r.Status.Conditions[0]
}

func (r *Resource) Ref() *Reference {
	return &Reference{Name: r.Spec.Name}
}

type Reference struct {
	Name string
}

// MostRelevant returns the resource of the phase with the highest attempt,
// or nil if the phase has none.
func MostRelevant(resources []*Resource, phase Phase) *Resource {
	var relevant *Resource
	for _, r := range resources {
		if r.Spec.Phase != phase {
			continue
		}
		if relevant == nil || r.Spec.Attempt() > relevant.Spec.Attempt() {
			relevant = r
		}
	}
	return relevant
}
