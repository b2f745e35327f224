package provision

import (
	"errors"
	"fmt"

	"github.com/loykin/funcprov/internal/common"
)

// Step names a stage of a provisioning run. The values are stored in run history.
type Step string

const (
	StepParse            Step = "parse"
	StepAuth             Step = "auth"
	StepLock             Step = "lock"
	StepPrepare          Step = "prepare"
	StepResolve          Step = "resolve"
	StepDownload         Step = "download"
	StepExtractBundle    Step = "extract_bundle"
	StepExtractTemplate  Step = "extract_template"
	StepCopyDevcontainer Step = "copy_devcontainer"
	StepFinalize         Step = "finalize"
	StepOpen             Step = "open"
)

// StepError tags an error with the step that produced it.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("provision: %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// FailedStep returns the step recorded in err, or "" when err carries none.
func FailedStep(err error) Step {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}

func step(logger *common.Logger, s Step, fn func() error) error {
	l := logger.WithStep(string(s))
	l.Debug("step started")
	if err := fn(); err != nil {
		l.Debug("step failed", "error", err)
		return &StepError{Step: s, Err: err}
	}
	l.Debug("step finished")
	return nil
}
