package supervisor

// Preparation steps, in the order they run
const (
	StepOptions    = "options"
	StepWorkspace  = "workspace"
	StepSpecFile   = "spec_file"
	StepSpec       = "spec"
	StepInitData   = "initdata"
	StepController = "controller"
)

// PreparationError wraps a failure that happened before the engine was
// started. Its message is the underlying error's message.
type PreparationError struct {
	Step string
	Err  error
}

func (e *PreparationError) Error() string { return e.Err.Error() }

func (e *PreparationError) Unwrap() error { return e.Err }
