package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zpam/comment-moderator/pkg/abuse"
	"github.com/zpam/comment-moderator/pkg/server"
)

var serveAddress string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the moderation HTTP API",
	Long: `Start the HTTP API and the vote event workers.

New comments are classified as they arrive when realtime classification is
enabled. Down votes are handed to background workers that report a comment
once it reaches the abuse cutoff. SIGINT or SIGTERM shut down gracefully.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		if serveAddress != "" {
			rt.cfg.Server.Address = serveAddress
		}

		dispatcher := abuse.NewDispatcher(rt.moderator, abuse.Config{
			QueueSize: rt.cfg.Worker.QueueSize,
			Workers:   rt.cfg.Worker.Workers,
		}, rt.logger.Named("votes"))

		srv := server.New(rt.db, rt.moderator, dispatcher, server.Config{
			Address:         rt.cfg.Server.Address,
			ReadTimeout:     rt.cfg.Server.ReadTimeout(),
			WriteTimeout:    rt.cfg.Server.WriteTimeout(),
			ShutdownTimeout: rt.cfg.Server.ShutdownGrace(),
		}, rt.logger.Named("http"))

		counts := rt.classifier.Counts()
		rt.logger.Info("moderator starting",
			zap.String("classifier", rt.cfg.Moderator.Classifier),
			zap.Int("trained_spam", counts.SpamCount),
			zap.Int("trained_ham", counts.HamCount),
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return dispatcher.Run(gctx) })
		g.Go(func() error { return srv.Run(gctx) })

		err = g.Wait()
		rt.logger.Info("moderator stopped")
		return err
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddress, "address", "a", "", "Listen address (overrides config)")
}
