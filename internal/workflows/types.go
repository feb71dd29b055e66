package workflows

import (
	"context"

	"github.com/tendant/simple-photo-pipeline/pkg/pipeline"
)

// WorkflowContext contains context for workflow execution
type WorkflowContext struct {
	Ctx   context.Context
	File  pipeline.CandidateFile
	RunID string
}

// WorkflowResult contains the result of workflow execution
type WorkflowResult struct {
	Photo      pipeline.ProcessedPhoto
	Job        *pipeline.PrintJob // nil when printing is disabled or compositing failed
	PrintJobID string
	PrintError error
}

// Workflow processes one settled photo
type Workflow interface {
	// Execute runs the workflow
	Execute(wctx *WorkflowContext) (*WorkflowResult, error)

	// Name returns the workflow name
	Name() string
}
