package titanic

import "context"

type executor interface {
	RunMapper(ctx context.Context, job *Job, binID uint, inputSplits []inputSplit) error
	RunReducer(ctx context.Context, job *Job, binID uint) error
}

// localExecutor runs tasks in-process.
type localExecutor struct{}

func (localExecutor) RunMapper(ctx context.Context, job *Job, binID uint, inputSplits []inputSplit) error {
	return job.runMapper(ctx, binID, inputSplits)
}

func (localExecutor) RunReducer(ctx context.Context, job *Job, binID uint) error {
	return job.runReducer(ctx, binID)
}
