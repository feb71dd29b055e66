package coordinator

import (
	"fmt"

	"github.com/tendant/simple-photo-pipeline/pkg/pipeline"
)

var transitions = map[pipeline.PipelineState][]pipeline.PipelineState{
	pipeline.StateStopped:  {pipeline.StateStarting},
	pipeline.StateStarting: {pipeline.StateRunning, pipeline.StateStopped},
	pipeline.StateRunning:  {pipeline.StateStopping},
	pipeline.StateStopping: {pipeline.StateStopped},
}

func validTransition(from, to pipeline.PipelineState) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("invalid transition: %s -> %s", from, to)
}
