package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/rolsen/tinyclassified/internal/config"
	"github.com/rolsen/tinyclassified/internal/di"
	"github.com/rolsen/tinyclassified/internal/di/providers"
	"github.com/rolsen/tinyclassified/internal/editor"
	"github.com/rolsen/tinyclassified/internal/errors"
	"github.com/rolsen/tinyclassified/internal/logger"
)

// app holds the container for one command invocation.
type app struct {
	flags    config.Flags
	injector *do.RootScope
	factory  *providers.SessionFactory
	log      *logger.Logger
}

func (a *app) setup(cmd *cobra.Command) error {
	a.injector = di.NewContainer(a.flags, providers.Output{Writer: cmd.OutOrStdout()})
	if err := di.Bootstrap(a.injector); err != nil {
		a.shutdown()
		return err
	}
	a.factory = do.MustInvoke[*providers.SessionFactory](a.injector)
	a.log = do.MustInvoke[*logger.Logger](a.injector)
	return nil
}

func (a *app) shutdown() {
	if a.injector == nil {
		return
	}
	if report := a.injector.Shutdown(); report != nil && !report.Succeed && a.log != nil {
		a.log.WithError(report).Error("Shutdown error")
	}
	a.injector = nil
}

// run wraps a command body so the container is shut down whether or not the
// body fails.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer a.shutdown()
		return fn(cmd, args)
	}
}

// withSession loads the configured listing, runs fn and waits for every save
// it started. Failures of background saves are returned together.
func (a *app) withSession(ctx context.Context, fn func(ctx context.Context, s *editor.Session) error) error {
	var (
		mu     sync.Mutex
		failed []error
	)
	session := a.factory.New(editor.Hooks{
		OnError: func(op string, err error) {
			mu.Lock()
			defer mu.Unlock()
			failed = append(failed, fmt.Errorf("%s: %w", op, err))
		},
	})
	defer session.Close()

	if err := session.Start(ctx, a.factory.Query()); err != nil {
		return err
	}
	if err := session.WaitReady(ctx); err != nil {
		session.Wait()
		return fmt.Errorf("load listing: %w", err)
	}

	err := fn(ctx, session)
	session.Wait()

	mu.Lock()
	defer mu.Unlock()
	return errors.Join(append([]error{err}, failed...)...)
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
