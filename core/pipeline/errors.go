package pipeline

import (
	"errors"
	"fmt"

	"RapLab/model"
)

var (
	// ErrGenerationFailed 生成步骤失败，曲目已被标记为 failed
	ErrGenerationFailed = errors.New("generation failed")
	// ErrStepBusy 同一曲目已有步骤在执行
	ErrStepBusy = errors.New("generation step already running")
	// ErrStepAbandoned 调用方在步骤完成前离开，曲目保持原状态等待续跑
	ErrStepAbandoned = errors.New("generation step abandoned")
)

// StepError reports a failed pipeline step. It matches ErrGenerationFailed
// and unwraps to the underlying cause.
type StepError struct {
	TrackID string
	Step    model.Step
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s step failed for track %s: %v", e.Step, e.TrackID, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func (e *StepError) Is(target error) bool { return target == ErrGenerationFailed }
