package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/qna-cli/internal/synchealth"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync knowledge entries from Notion into the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		env := &appEnv{Store: st, Tracker: synchealth.NewTracker(st)}

		syncer, err := initSyncer(env)
		if err != nil {
			return err
		}

		report, err := syncer.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "sync knowledge")
		}

		health, err := env.Tracker.Health(ctx)
		if err != nil {
			return eris.Wrap(err, "read sync health")
		}

		zap.L().Info("sync complete",
			zap.Int("created", report.Created),
			zap.Int("updated", report.Updated),
			zap.Int("failed", report.Failed),
			zap.Bool("healthy", health.Healthy),
		)
		return nil
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show knowledge sync health",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		health, err := synchealth.NewTracker(st).Health(ctx)
		if err != nil {
			return eris.Wrap(err, "read sync health")
		}

		zap.L().Info("sync health",
			zap.Int("total", health.Total),
			zap.Int("synced", health.Synced),
			zap.Int("pending", health.Pending),
			zap.Int("failed", health.Failed),
			zap.Int("unknown", health.Unknown),
			zap.Int("recent_failures", health.RecentFailures),
			zap.Bool("healthy", health.Healthy),
		)
		return nil
	},
}

func init() {
	syncCmd.AddCommand(syncStatusCmd)
	rootCmd.AddCommand(syncCmd)
}
