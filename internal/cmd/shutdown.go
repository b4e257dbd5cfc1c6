package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/latticeboot/internal/module"
)

const shutdownTimeout = 5 * time.Second

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdownModules calls Shutdown on every started module that has one, last
// started first.
func shutdownModules(ctx context.Context, mods []*module.Module, log *zap.SugaredLogger) error {
	var errs []error
	for i := len(mods) - 1; i >= 0; i-- {
		m := mods[i]
		if m.State() != module.StateStarted {
			continue
		}
		s, ok := m.Impl().(shutdowner)
		if !ok {
			continue
		}
		if err := s.Shutdown(ctx); err != nil {
			log.Warnw("Shutdown failed", "module", m.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", m.Name(), err))
			continue
		}
		log.Debugw("Shut down", "module", m.Name())
	}
	return errors.Join(errs...)
}
