package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"owlmoney/internal/backend"
	"owlmoney/internal/config"
	"owlmoney/internal/core"
	applog "owlmoney/internal/log"
	"owlmoney/internal/persist"
	"owlmoney/internal/profile"
)

// Env is what every subcommand needs to reach the profile.
type Env struct {
	Config  *config.Config
	Logger  *applog.Logger
	Out     io.Writer
	Clock   core.Clock
	Factory backend.Factory
}

// Session is an open profile bound to its backend.
type Session struct {
	Profile *profile.Profile

	env     *Env
	store   *persist.Store
	backend *backend.BackendResult
}

// Open creates the configured backend and loads the profile from it.
func (e *Env) Open(ctx context.Context) (*Session, error) {
	start := time.Now()
	logger := e.Logger.WithComponent(applog.ComponentPersist).Slog()

	bcfg, err := backend.FromAppConfig(e.Config)
	if err != nil {
		return nil, err
	}
	factory := e.Factory
	if factory == nil {
		factory = backend.NewFactory(e.Logger.WithComponent(applog.ComponentBackend).Slog())
	}
	res, err := factory.CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}

	clock := e.Clock
	if clock == nil {
		clock = core.SystemClock{}
	}
	store := persist.New(res.Tables, persist.WithLogger(logger))
	p, err := store.Load(ctx, e.Config.ProfileName,
		profile.WithClock(clock),
		profile.WithCatchUpLimit(e.Config.CatchUpLimit),
		profile.WithLogger(e.Logger.WithComponent(applog.ComponentLedger).Slog()))
	if err != nil {
		res.Close()
		return nil, fmt.Errorf("load profile %s: %w", e.Config.ProfileName, err)
	}
	fields := applog.NewFields().WithOperation(applog.OpLoad)
	fields[applog.FieldBackend] = string(bcfg.Type)
	fields[applog.FieldDuration] = time.Since(start).Milliseconds()
	e.Logger.LogFields(ctx, slog.LevelDebug, "Profile opened", fields)
	return &Session{Profile: p, env: e, store: store, backend: res}, nil
}

// Save writes the whole profile back and prints any warnings.
func (s *Session) Save(ctx context.Context) []persist.Warning {
	warnings := s.store.SaveProfile(ctx, s.Profile)
	if len(warnings) > 0 {
		fields := applog.NewFields().WithOperation(applog.OpSave).WithError(warnings[0])
		fields["failed_tables"] = len(warnings)
		s.env.Logger.LogFields(ctx, slog.LevelWarn, "Profile partially saved", fields)
	}
	s.printWarnings(warnings)
	return warnings
}

// Forget drops the tables of a removed account or card.
func (s *Session) Forget(ctx context.Context, name string) {
	s.printWarnings(s.store.Forget(ctx, name))
}

func (s *Session) printWarnings(warnings []persist.Warning) {
	for _, w := range warnings {
		fmt.Fprintf(s.env.Out, "warning: %v\n", w)
	}
}

func (s *Session) Close() error {
	return s.backend.Close()
}
