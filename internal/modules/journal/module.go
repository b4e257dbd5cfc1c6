// Package journal provides the "logbook" builtin: a plain-text startup journal
// written under the application root.
package journal

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/kingrea/latticeboot/internal/config"
	"github.com/kingrea/latticeboot/internal/logbook"
	"github.com/kingrea/latticeboot/internal/module"
	"github.com/kingrea/latticeboot/internal/pubsub"
)

const (
	// Locator registers the journal in the package registry.
	Locator = "logbook"

	// DefaultPath is where the journal is written, relative to the root path.
	DefaultPath = config.StateDir + "/logs/startup.log"
)

var recordedTopics = []string{
	module.TopicSettingUp,
	module.TopicStarting,
	module.TopicStarted,
	module.TopicFailed,
	module.TopicAppStarted,
}

// Module journals lifecycle events. Set-up completions come from
// OnModuleSetUp so modules set up before the journal are covered too.
type Module struct {
	mu   sync.Mutex
	book *logbook.Logbook
	sub  *pubsub.Subscription
}

// Register installs the journal factory.
func Register(reg *module.Registry) {
	if reg == nil {
		return
	}
	reg.MustRegister(Locator, func() (module.Implementation, error) {
		return New(), nil
	})
}

// New constructs an unopened journal.
func New() *Module {
	return &Module{}
}

// DefaultConfig implements module.Defaulter.
func (j *Module) DefaultConfig() module.Config {
	return module.Config{"path": DefaultPath}
}

// SetUp opens the journal and starts recording.
func (j *Module) SetUp(host module.Host, m *module.Module) error {
	path := m.Config().String("path")
	if path == "" {
		path = DefaultPath
	}
	if !filepath.IsAbs(path) {
		path = host.PathTo(path)
	}
	book, err := logbook.New(path)
	if err != nil {
		return fmt.Errorf("journal: open %s: %w", path, err)
	}
	book.Info("boot %s (%s)", host.ID(), host.Env())
	sub := book.Record(host.Broker(), recordedTopics...)
	j.mu.Lock()
	j.book, j.sub = book, sub
	j.mu.Unlock()
	return nil
}

// OnModuleSetUp implements module.SetUpObserver.
func (j *Module) OnModuleSetUp(_ module.Host, info module.SetUpInfo) {
	if book := j.Book(); book != nil {
		book.Append(logbook.LevelInfo, logbook.Format(pubsub.Message{
			Topic:   module.TopicSetUp,
			Payload: module.ModuleEvent{Module: info.SetUpModule},
		}))
	}
}

// Start implements module.Starter.
func (j *Module) Start(_ module.Host, m *module.Module) error {
	book := j.Book()
	if book == nil {
		return fmt.Errorf("journal: not set up")
	}
	m.Logger().Infow("Journal ready", "path", book.Path())
	return nil
}

// Shutdown stops recording and closes the journal file.
func (j *Module) Shutdown(context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.sub != nil {
		j.sub.Cancel()
		j.sub = nil
	}
	if j.book == nil {
		return nil
	}
	return j.book.Close()
}

// Book returns the open logbook, or nil before set-up.
func (j *Module) Book() *logbook.Logbook {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.book
}
