package server

import "fmt"

// Startup stages reported in StartupError.Stage.
const (
	StageViews   = "views"
	StageStatic  = "static"
	StageBody    = "body"
	StageSession = "session"
	StageHMR     = "hmr"
	StagePlugin  = "plugin"
	StageListen  = "listen"
)

// StartupError is returned when assembly fails after validation: a plugin
// failed, the socket could not be bound, or a configured resource could
// not be loaded. Nothing is left listening.
type StartupError struct {
	Stage  string
	Plugin string // set when Stage is StagePlugin
	Err    error
}

func (e *StartupError) Error() string {
	if e.Plugin != "" {
		return fmt.Sprintf("server: startup failed at %s %q: %v", e.Stage, e.Plugin, e.Err)
	}
	return fmt.Sprintf("server: startup failed at %s: %v", e.Stage, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }
