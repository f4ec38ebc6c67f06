package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"voice-dashboard/pkg/db"
	"voice-dashboard/pkg/replication"
)

var (
	replicateBatch   int
	replicateWorkers int
)

var replicateCmd = &cobra.Command{
	Use:   "replicate",
	Short: "Copy recordings from MongoDB into Postgres",
	Long: `Copy every recording of the MongoDB store into the voice_records
table of Postgres. Rows that already exist are left untouched, so the
command can be re-run.

The target is postgres.dsn (DATABASE_URL) or, without it, the Supabase
database reached with supabase.db_password.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		pool, err := dbPool(cfg)
		if err != nil {
			return err
		}

		mongo := db.NewMongoRecordStore(cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection)
		if err := mongo.Connect(ctx); err != nil {
			return fmt.Errorf("connect mongo: %w", err)
		}
		defer mongo.Close(context.Background())

		var provider db.DBProvider
		switch {
		case cfg.Postgres.DSN != "":
			pg := db.NewPostgresClient(db.PostgresConfig{DSN: cfg.Postgres.DSN, Pool: pool})
			if err := pg.Connect(ctx); err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pg.Close()
			provider = pg
		case cfg.Supabase.URL != "" && cfg.Supabase.DBPassword != "":
			sb := db.NewSupabaseClient(db.SupabaseConfig{
				SupabaseURL: cfg.Supabase.URL,
				SupabaseKey: cfg.Supabase.Key,
				Password:    cfg.Supabase.DBPassword,
				Pool:        pool,
			})
			if err := sb.Connect(ctx); err != nil {
				return fmt.Errorf("connect supabase: %w", err)
			}
			defer sb.Close()
			if !sb.HasDirectDB() {
				return fmt.Errorf("supabase database is not reachable directly: %w", sb.DirectDBError())
			}
			provider = sb
		default:
			return fmt.Errorf("no postgres target; set DATABASE_URL or SUPABASE_DB_PASSWORD")
		}

		r, err := replication.NewReplicator(replication.Config{
			Mongo:     mongo,
			Postgres:  db.NewPostgresRecordStore(provider),
			BatchSize: replicateBatch,
			Workers:   replicateWorkers,
		})
		if err != nil {
			return err
		}

		start := time.Now()
		res, err := r.ReplicateRecordings(ctx)
		if err != nil {
			return fmt.Errorf("replication failed after %d recordings: %w", res.Processed, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Processed %d recordings, inserted %d in %s\n",
			res.Processed, res.Inserted, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	replicateCmd.Flags().IntVar(&replicateBatch, "batch", replication.DefaultBatchSize, "recordings per insert batch")
	replicateCmd.Flags().IntVar(&replicateWorkers, "workers", replication.DefaultWorkers, "parallel batch workers")

	rootCmd.AddCommand(replicateCmd)
}
