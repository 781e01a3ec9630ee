//go:build linux

// nsboot starts a shell in new PID, network and mount namespaces.
//
//	sudo nsboot
//
// The process clones itself into the new namespaces and replaces itself with
// the fallback program, while the clone unshares the namespaces again, makes
// the mount tree private, mounts /proc and execs /bin/sh.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/rectcircle/nsboot/internal/bootstrap"
	"github.com/rectcircle/nsboot/internal/config"
	"github.com/rectcircle/nsboot/internal/logger"
	"github.com/rectcircle/nsboot/internal/namespace"
	"github.com/rectcircle/nsboot/internal/stage"
	"github.com/rectcircle/nsboot/internal/supervisor"
)

func main() {
	err := run(context.Background())
	logger.Sync()
	if err == nil {
		return
	}
	var es *bootstrap.ExitStatus
	if errors.As(err, &es) {
		os.Exit(es.Code)
	}
	_, _ = fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}

func run(ctx context.Context) error {
	cfg, err := config.FromEnvironment()
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log); err != nil {
		return err
	}

	// PID 1 of the namespace unshared by the child finishes the sequence
	if stage.Current(os.Getenv) == stage.Init {
		logger.With(zap.String("role", "init"), zap.String("run_id", os.Getenv(stage.RunIDEnv)))
		return bootstrap.New(cfg, bootstrap.ResumeAt(bootstrap.PidIsolated)).Run(ctx)
	}

	sv := supervisor.New(cfg)
	role, err := sv.Spawn(namespace.All())
	if err != nil {
		return err
	}
	switch r := role.(type) {
	case supervisor.Child:
		logger.With(zap.String("role", "child"), zap.String("run_id", os.Getenv(stage.RunIDEnv)))
		return bootstrap.New(cfg).Run(ctx)
	case supervisor.Parent:
		logger.With(zap.String("role", "supervisor"), zap.String("run_id", r.Context.RunID()))
		return sv.Supervise(r)
	}
	return fmt.Errorf("unknown role %T", role)
}
