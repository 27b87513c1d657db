package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/recruitin/kandidatentekort/internal/config"
	"github.com/recruitin/kandidatentekort/internal/nurture"
	"github.com/recruitin/kandidatentekort/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server and the nurture scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initApp(ctx, cfg, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		srv := server.New(cfg.Server, serverDeps(env, cfg))

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.Run(gctx) })

		if cfg.Nurture.Enabled && env.Nurture != nil {
			sched := nurture.NewScheduler(env.Nurture, time.Duration(cfg.Nurture.IntervalMins)*time.Minute)
			g.Go(func() error { return sched.Run(gctx) })
		} else {
			zap.L().Info("nurture scheduler disabled")
		}

		return g.Wait()
	},
}

func serverDeps(env *appEnv, c *config.Config) server.Deps {
	deps := server.Deps{
		Pipeline:     env.Pipeline,
		Review:       env.Review,
		Store:        env.Store,
		Integrations: c.Integrations(),
		Debug: server.Debug{
			Notifier:      env.Dispatcher,
			Layouts:       env.Layouts,
			TestRecipient: c.SMTP.Username,
		},
	}
	if env.Nurture != nil {
		deps.Nurture = env.Nurture
	}
	if env.Analyzer != nil {
		deps.Debug.Analyzer = env.Analyzer
	}
	return deps
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
