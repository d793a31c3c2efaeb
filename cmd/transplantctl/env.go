package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"transplantcore/internal/config"
	"transplantcore/internal/core"
)

// env is the per-invocation wiring: configuration, logger and a service over
// the configured store.
type env struct {
	cfg    config.Config
	logger core.Logger
	svc    *core.Service
	store  core.PersistentStore
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return config.Config{}, err
	}
	if level := c.String("log-level"); level != "" {
		cfg.Log.Level = level
		if err := cfg.Validate(); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}

func openEnv(c *cli.Context, opts ...core.ServiceOption) (*env, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	logger, err := core.NewZapLogger(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	matcher, err := cfg.NewMatcher()
	if err != nil {
		return nil, err
	}
	store, err := core.OpenPersistentStore(cfg.Storage, core.NewPolicyRulesEngine(matcher.Threshold()), cfg.NewDrawer())
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	base := []core.ServiceOption{
		core.WithLogger(logger),
		core.WithMatcher(matcher),
		core.WithAuditRecorder(core.NewLogAuditRecorder(logger)),
	}
	svc := core.NewService(store, append(base, opts...)...)
	return &env{cfg: cfg, logger: logger, svc: svc, store: store}, nil
}

func (e *env) Close() error {
	return core.CloseStore(e.store)
}

// withEnv opens the environment, runs fn and closes the store.
func withEnv(c *cli.Context, fn func(*env) error) error {
	return withEnvOptions(c, nil, fn)
}

func withEnvOptions(c *cli.Context, opts []core.ServiceOption, fn func(*env) error) (err error) {
	e, err := openEnv(c, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := e.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close store: %w", cerr)
		}
	}()
	return fn(e)
}
