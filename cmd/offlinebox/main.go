package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/festbuddy/offlinebox/internal/coordinator"
	"github.com/festbuddy/offlinebox/internal/database"
	"github.com/festbuddy/offlinebox/internal/oberror"
	"github.com/festbuddy/offlinebox/internal/server"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/muesli/coral"
	"github.com/sanity-io/litter"
)

const dbname = "offlinebox.db"

var (
	version  = "dev"
	revision = "none"
	date     = "unknown"

	cfg   string
	owner string
)

func main() {
	c := &coral.Command{
		Use:     "offlinebox",
		Short:   "Offline draft store and sync queue for the FestBuddy app",
		Version: fmt.Sprintf("%s - build %.7s @ %s - %s", version, revision, date, runtime.Version()),
		Args:    coral.ExactArgs(0),
	}

	for _, cmd := range []*coral.Command{
		initCmd, reindexCmd, statsCmd, inspectCmd, sweepCmd, retryCmd, clearCmd, serverCmd,
	} {
		cmd.Flags().StringVarP(&cfg, "config", "c", "", "Configuration file")
		c.AddCommand(cmd)
	}
	inspectCmd.Flags().StringVarP(&owner, "owner", "o", "", "Owner id (empty for guest)")

	if err := c.Execute(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func konfig() (*koanf.Koanf, error) {
	konf := koanf.New(".")
	if cfg == "" {
		return konf, nil
	}
	return konf, konf.Load(file.Provider(cfg), yaml.Parser())
}

func dbnameWithPath(path string) string {
	if len(path) == 0 {
		return dbname
	}
	return filepath.Join(path, dbname)
}

func parameters(konf *koanf.Koanf) coordinator.Parameters {
	p := coordinator.DefaultParameters()
	if v := konf.Int("retention_days"); v > 0 {
		p.RetentionDays = v
	}
	if v := konf.Duration("autosave_debounce"); v > 0 {
		p.AutosaveInterval = v
	}
	if v := konf.Int("max_sync_retries"); v > 0 {
		p.MaxSyncRetries = v
	}
	if v := konf.Duration("backoff.base"); v > 0 {
		p.BackoffBase = v
	}
	if v := konf.Duration("backoff.cap"); v > 0 {
		p.BackoffCap = v
	}
	if v := konf.Duration("cleanup_interval"); v > 0 {
		p.CleanupInterval = v
	}
	if v := konf.Duration("sync_interval"); v > 0 {
		p.SyncInterval = v
	}
	if v := konf.Int64("storage.quota_bytes"); v > 0 {
		p.StorageQuotaBytes = v
	}
	if v := konf.Int64("storage.warn_bytes"); v > 0 {
		p.StorageWarnBytes = v
	}
	if v := konf.Int64("storage.limit_bytes"); v > 0 {
		p.StorageLimitBytes = v
	}
	return p
}

func open(konf *koanf.Koanf) (database.Client, coordinator.Parameters) {
	params := parameters(konf)
	db := database.StormOpen(dbnameWithPath(konf.String("database_path")), params.StorageQuotaBytes)

	// Probe the engine once. When the durable store cannot be opened the
	// process keeps running on the in-memory client, just without durability.
	if _, err := db.CountSyncItems(); oberror.IsStorageUnavailable(err) {
		log.Printf("durable store unavailable, running in memory: %s", err)
		return database.NewMemory(params.StorageQuotaBytes), params
	}
	return db, params
}

func ownerID() *string {
	if owner == "" {
		return nil
	}
	return &owner
}

var (
	initCmd = &coral.Command{
		Use:   "init",
		Short: "Init the database",
		Args:  coral.ExactArgs(0),
		RunE: func(_ *coral.Command, _ []string) error {
			konf, err := konfig()
			if err != nil {
				return err
			}

			return database.StormInit(dbnameWithPath(konf.String("database_path")))
		},
	}

	//
	reindexCmd = &coral.Command{
		Use:   "reindex",
		Short: "Reindex the database",
		Args:  coral.ExactArgs(0),
		RunE: func(_ *coral.Command, _ []string) error {
			konf, err := konfig()
			if err != nil {
				return err
			}

			return database.StormReIndex(dbnameWithPath(konf.String("database_path")))
		},
	}

	//
	statsCmd = &coral.Command{
		Use:   "stats",
		Short: "Print the offline state snapshot",
		Args:  coral.ExactArgs(0),
		RunE: func(_ *coral.Command, _ []string) error {
			konf, err := konfig()
			if err != nil {
				return err
			}

			db, params := open(konf)
			defer db.Close()

			ctrl := coordinator.New(db, nil, params, newLogger(konf.String("log_file")))
			ctrl.Refresh()

			payload, err := json.MarshalIndent(ctrl.State(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(payload))
			return nil
		},
	}

	//
	inspectCmd = &coral.Command{
		Use:   "inspect",
		Short: "Dump the drafts and sync items of one owner",
		Args:  coral.ExactArgs(0),
		RunE: func(_ *coral.Command, _ []string) error {
			konf, err := konfig()
			if err != nil {
				return err
			}

			db, params := open(konf)
			defer db.Close()

			ctrl := coordinator.New(db, nil, params, newLogger(konf.String("log_file")))

			posts, err := ctrl.Drafts().ListPostDrafts(ownerID())
			if err != nil {
				return err
			}
			comments, err := ctrl.Drafts().ListCommentDrafts(ownerID(), "")
			if err != nil {
				return err
			}
			stats, err := ctrl.Queue().Stats()
			if err != nil {
				return err
			}

			fmt.Println(litter.Sdump(posts))
			fmt.Println(litter.Sdump(comments))
			fmt.Println(litter.Sdump(stats))
			return nil
		},
	}

	//
	sweepCmd = &coral.Command{
		Use:   "sweep",
		Short: "Sweep expired drafts and completed sync items",
		Args:  coral.ExactArgs(0),
		RunE: func(_ *coral.Command, _ []string) error {
			konf, err := konfig()
			if err != nil {
				return err
			}

			db, params := open(konf)
			defer db.Close()

			ctrl := coordinator.New(db, nil, params, newLogger(konf.String("log_file")))
			drafts, items, err := ctrl.Cleanup()
			if err != nil {
				return err
			}

			fmt.Printf("removed %d drafts and %d sync items\n", drafts, items)
			return nil
		},
	}

	//
	retryCmd = &coral.Command{
		Use:   "retry",
		Short: "Reset all failed sync items for another delivery round",
		Args:  coral.ExactArgs(0),
		RunE: func(_ *coral.Command, _ []string) error {
			konf, err := konfig()
			if err != nil {
				return err
			}

			db, params := open(konf)
			defer db.Close()

			ctrl := coordinator.New(db, nil, params, newLogger(konf.String("log_file")))
			count, err := ctrl.Queue().RetryAllFailed()
			if err != nil {
				return err
			}

			fmt.Printf("reset %d failed sync items\n", count)
			return nil
		},
	}

	//
	clearCmd = &coral.Command{
		Use:   "clear",
		Short: "Empty the sync queue",
		Args:  coral.ExactArgs(0),
		RunE: func(_ *coral.Command, _ []string) error {
			konf, err := konfig()
			if err != nil {
				return err
			}

			db, params := open(konf)
			defer db.Close()

			ctrl := coordinator.New(db, nil, params, newLogger(konf.String("log_file")))
			count, err := ctrl.Queue().Clear()
			if err != nil {
				return err
			}

			fmt.Printf("cleared %d sync items\n", count)
			return nil
		},
	}

	//
	//
	serverCmd = &coral.Command{
		Use:   "server",
		Short: "Run the offline engine with its local HTTP facade",
		Args:  coral.ExactArgs(0),
		RunE: func(_ *coral.Command, _ []string) error {
			konf, err := konfig()
			if err != nil {
				return err
			}

			db, params := open(konf)
			defer db.Close()

			logger := newLogger(konf.String("log_file"))

			endpoint := konf.String("remote.endpoint")
			ctrl := coordinator.New(db, remoteForwarder(endpoint), params, logger)
			ctrl.Start()
			defer ctrl.Stop()

			watchConnectivity(ctrl, endpoint, params.SyncInterval, logger)

			address := konf.String("address")
			if address == "" {
				address = "127.0.0.1:5784"
			}

			engine := server.EchoEngine(server.IOC{
				Version:     version,
				Coordinator: ctrl,
			})
			return engine.Start(address)
		},
	}
)

func init() {
	litter.Config.HidePrivateFields = false
	log.SetOutput(os.Stderr)
}
