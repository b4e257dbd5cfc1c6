package module

import (
	"fmt"
	"time"
)

// Lifecycle topics published on the app broker.
const (
	TopicPrefix     = "app."
	TopicSettingUp  = "app.modules.settingUp"
	TopicSetUp      = "app.modules.setUp"
	TopicStarting   = "app.modules.starting"
	TopicStarted    = "app.modules.started"
	TopicFailed     = "app.modules.failed"
	TopicAppStarted = "app.started"
)

// ModuleEvent is the payload of the per-module lifecycle topics.
type ModuleEvent struct {
	Module *Module
}

func (e ModuleEvent) String() string {
	return e.Module.Name()
}

// FailedEvent reports a module that could not be loaded, set up or started.
// Module is nil when loading failed; Name is also empty when the failure
// could not be pinned on a module.
type FailedEvent struct {
	Name   string
	Module *Module
	Err    error
}

func (e FailedEvent) String() string {
	if e.Name == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

// StartedEvent is published once every module has started.
type StartedEvent struct {
	ID      string
	RunID   string
	Env     string
	Elapsed time.Duration
}

func (e StartedEvent) String() string {
	return fmt.Sprintf("%s (%s) run %s started in %s", e.ID, e.Env, e.RunID, e.Elapsed)
}
