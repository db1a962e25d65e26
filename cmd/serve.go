package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/qna-cli/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the question-answering HTTP server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		deps := server.Deps{
			Store:           env.Store,
			Ranker:          env.Ranker,
			Generator:       env.Generator,
			Tracker:         env.Tracker,
			Sections:        env.Sections,
			FallbackText:    cfg.Answer.FallbackText,
			MaxSkills:       cfg.Answer.MaxSkills,
			HistoryMaxTurns: cfg.Answer.HistoryMaxTurns,
			SyncToken:       cfg.Server.SyncToken,
		}

		// The sync trigger needs Notion credentials; without them the
		// endpoint stays disabled but the rest of the API still serves.
		if cfg.Notion.Token != "" && cfg.Notion.KnowledgeDB != "" {
			syncer, err := initSyncer(env)
			if err != nil {
				return err
			}
			deps.Syncer = syncer
		} else {
			deps.SyncToken = ""
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: server.NewHandler(deps),
		}

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
