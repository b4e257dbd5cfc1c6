package module

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownLocator is returned by Registry.Resolve for unregistered locators.
var ErrUnknownLocator = errors.New("module: unknown locator")

// ModuleError is implemented by every error that originates from a specific
// module.
type ModuleError interface {
	error
	ModuleName() string
}

// LoadError reports that a module's code could not be resolved.
type LoadError struct {
	Module  string
	Locator string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s module failed to load %q: %v", e.Module, e.Locator, e.Err)
}

func (e *LoadError) Unwrap() error      { return e.Err }
func (e *LoadError) ModuleName() string { return e.Module }

// InvalidModuleError reports a loaded implementation without a usable start
// hook.
type InvalidModuleError struct {
	Module string
	Reason string
}

func (e *InvalidModuleError) Error() string {
	return fmt.Sprintf("%s is not a valid module: %s", e.Module, e.Reason)
}

func (e *InvalidModuleError) ModuleName() string { return e.Module }

// SetUpError wraps a failure returned or raised by a SetUp hook.
type SetUpError struct {
	Module string
	Err    error
}

func (e *SetUpError) Error() string {
	return fmt.Sprintf("%s module failed to set up: %v", e.Module, e.Err)
}

func (e *SetUpError) Unwrap() error      { return e.Err }
func (e *SetUpError) ModuleName() string { return e.Module }

// MissingDependencyError reports a required module that was not registered
// when the dependent module started.
type MissingDependencyError struct {
	Module   string
	Property string
	// Target is the referenced module name, empty when no reference was
	// configured.
	Target string
}

func (e *MissingDependencyError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("[%s] module requires the [%s] module but no %s%s is configured", e.Module, e.Property, e.Property, RefSuffix)
	}
	return fmt.Sprintf("[%s] module requires the [%s] module (%s) which is not registered", e.Module, e.Property, e.Target)
}

func (e *MissingDependencyError) ModuleName() string { return e.Module }

// StartTimeoutError reports an asynchronous start that did not complete in
// time.
type StartTimeoutError struct {
	Module  string
	Timeout time.Duration
}

func (e *StartTimeoutError) Error() string {
	return fmt.Sprintf("%s module failed to start in the allowed time of %s", e.Module, e.Timeout)
}

func (e *StartTimeoutError) ModuleName() string { return e.Module }

// StartFailureError wraps an error reported by a start hook.
type StartFailureError struct {
	Module string
	Err    error
}

func (e *StartFailureError) Error() string {
	return fmt.Sprintf("%s module failed to start: %v", e.Module, e.Err)
}

func (e *StartFailureError) Unwrap() error      { return e.Err }
func (e *StartFailureError) ModuleName() string { return e.Module }

// PanicError carries a value recovered from a panicking hook.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// NameOf returns the module an error originates from, or "" when unknown.
func NameOf(err error) string {
	var me ModuleError
	if errors.As(err, &me) {
		return me.ModuleName()
	}
	return ""
}

// Annotate attributes err to module name unless it already carries a module.
func Annotate(name string, err error) error {
	if err == nil {
		return nil
	}
	if NameOf(err) != "" {
		return err
	}
	return &StartFailureError{Module: name, Err: err}
}
