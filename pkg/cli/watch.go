package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/poltergeist/conjure/pkg/config"
	"github.com/poltergeist/conjure/pkg/logger"
)

func (c *CLI) newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [module...]",
		Short: "Compile modules and recompile on change",
		Long: `Compile the selected modules, then watch their source roots and recompile
after each burst of changes. Resources are copied into the destination.
Editing the configuration file restarts the watchers with the new settings.`,
		RunE: c.runWatch,
	}
}

func (c *CLI) runWatch(cmd *cobra.Command, args []string) error {
	cfg, path, err := c.loadConfig()
	if err != nil {
		return err
	}

	defer c.stateManager().Cleanup()

	ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	var (
		mu      sync.Mutex
		next    *config.Config
		restart context.CancelFunc
	)

	reload := config.NewReloadManager(path, c.logger)
	reload.AddCallback(func(updated *config.Config, err error) {
		if err != nil {
			c.logger.Warn("Ignoring invalid configuration", logger.WithField("error", err))
			return
		}
		mu.Lock()
		defer mu.Unlock()
		next = updated
		if restart != nil {
			restart()
		}
	})
	if err := reload.StartWatching(); err != nil {
		c.logger.Warn("Configuration changes will not be picked up", logger.WithField("error", err))
	} else {
		defer reload.StopWatching()
	}

	for {
		runCtx, cancel := context.WithCancel(ctx)
		mu.Lock()
		restart = cancel
		mu.Unlock()

		err := c.newEngine(cfg).Watch(runCtx, args)
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		if ctx.Err() != nil {
			c.logger.Info("Shutting down")
			return nil
		}

		mu.Lock()
		if next != nil {
			cfg, next = next, nil
			if c.config.Parallel > 0 {
				cfg.Parallelism = c.config.Parallel
			}
		}
		mu.Unlock()
		c.logger.Info("Configuration changed, restarting watchers")
	}
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
