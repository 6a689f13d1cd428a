package domain

import "time"

// StepSpec is one typed step of a pipeline with free-form parameters
type StepSpec struct {
	Type   string         `json:"type" yaml:"type"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// PipelineSpec is an ordered sequence of steps
type PipelineSpec struct {
	Steps []StepSpec `json:"steps" yaml:"steps"`
}

// Workflow is a named pipeline definition that runs may originate from.
// Immutable once created.
type Workflow struct {
	ID           int64
	Name         string
	PipelineSpec *PipelineSpec
	CreatedAt    time.Time
}

// Run is one execution instance of a (possibly ad-hoc) pipeline.
// Status is a cached projection of the run's event log.
type Run struct {
	ID         string
	WorkflowID *int64
	Status     RunStatus
	Metrics    map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RunEvent is one immutable log entry describing something that
// happened during a run. The assigned ID is the authoritative causal
// order; TS is caller-supplied and purely informational.
type RunEvent struct {
	ID     int64
	RunID  string
	TS     time.Time
	Level  EventLevel
	Title  string
	Detail string
}

// Model is an artifact record produced by a completed run. Runs
// reference models by naming convention ("model-run-{id}"), not by
// foreign key.
type Model struct {
	ID        int64
	Name      string
	Path      string
	CreatedAt time.Time
}
