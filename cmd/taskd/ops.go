package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mido1300/sm/internal/ops"
	"github.com/Mido1300/sm/internal/storage"
)

func defaultArchive(dataDir string, now time.Time) string {
	return filepath.Join(dataDir, "backups", "taskd-"+now.Format("20060102T150405Z")+".tar.gz")
}

func newBackupCmd(flags *rootFlags) *cobra.Command {
	var archive string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write the stored state to a tar.gz archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			kv, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer kv.Close()

			now := time.Now().UTC()
			if archive == "" {
				archive = defaultArchive(cfg.DataDir, now)
			}
			keys, err := ops.AppKeys(kv)
			if err != nil {
				return err
			}
			n, err := ops.BackupStore(kv, keys, archive, now)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d entries to %s\n", n, archive)
			return nil
		},
	}
	cmd.Flags().StringVarP(&archive, "archive", "a", "", "archive path (default <data-dir>/backups/taskd-<time>.tar.gz)")
	return cmd
}

func newRestoreCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <archive>",
		Short: "Load a backup archive into the configured storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			kv, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer kv.Close()

			keys, err := ops.RestoreStore(args[0], kv)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %d entries from %s\n", len(keys), args[0])
			return nil
		},
	}
}

func newDrillCmd(flags *rootFlags) *cobra.Command {
	var archive string

	cmd := &cobra.Command{
		Use:   "drill",
		Short: "Back up, restore into scratch storage and compare digests",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			kv, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer kv.Close()

			now := time.Now().UTC()
			if archive == "" {
				dir, err := os.MkdirTemp("", "taskd-drill-")
				if err != nil {
					return err
				}
				defer os.RemoveAll(dir)
				archive = filepath.Join(dir, "drill.tar.gz")
			}
			res, err := ops.Drill(kv, storage.NewMemoryStore(), archive, now)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVarP(&archive, "archive", "a", "", "archive path (default: a temporary file)")
	return cmd
}
