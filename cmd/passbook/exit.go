package main

// Process exit codes. Startup failures exit before the socket is bound;
// provisioning failures leave the pack store untouched.
const (
	exitOK        = 0
	exitRuntime   = 1
	exitStartup   = 2
	exitProvision = 3
)

// ExitError carries an exit code through cobra's error path.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return "exit"
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func startupErr(err error) error {
	return &ExitError{Code: exitStartup, Err: err}
}

func runtimeErr(err error) error {
	return &ExitError{Code: exitRuntime, Err: err}
}
