package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"linkrelay/internal/config"
	"linkrelay/internal/journal"
	"linkrelay/internal/links"
	"linkrelay/internal/logging"
	"linkrelay/internal/services/megaplan"
	"linkrelay/internal/services/nextcloud"
)

func newJournalCommand(ctx *commandContext) *cobra.Command {
	journalCmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect and edit the task journal",
	}
	journalCmd.AddCommand(newJournalListCommand(ctx))
	journalCmd.AddCommand(newJournalShowCommand(ctx))
	journalCmd.AddCommand(newJournalForgetCommand(ctx))
	journalCmd.AddCommand(newJournalBackupCommand(ctx))
	return journalCmd
}

func withStore(cmd *cobra.Command, ctx *commandContext, fn func(*config.Config, journal.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	store, err := journal.Open(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer store.Close()
	return fn(cfg, store)
}

func newJournalListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List journaled tasks in journal order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, ctx, func(_ *config.Config, store journal.Store) error {
				j, err := store.Load(cmd.Context())
				if err != nil {
					return err
				}
				records := j.Records()
				if limit > 0 {
					records = j.Recent(limit)
				}
				if jsonOut {
					if records == nil {
						records = []journal.Binding{}
					}
					return writeJSON(cmd, records)
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "Journal is empty")
					return nil
				}
				rows := make([][]string, 0, len(records))
				for _, b := range records {
					share := b.ShareID
					if share == "" {
						share = "-"
					}
					rows = append(rows, []string{b.TaskID, share, b.FolderPath})
				}
				fmt.Fprintln(out, renderTable([]tableColumn{
					{header: "Task", align: alignRight},
					{header: "Share", align: alignRight},
					{header: "Folder", maxWidth: 60},
				}, rows))
				fmt.Fprintf(out, "%d of %d records\n", len(records), j.Len())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output records as JSON")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show only the most recent N records")
	return cmd
}

func newJournalShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show one journaled task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, ctx, func(_ *config.Config, store journal.Store) error {
				j, err := store.Load(cmd.Context())
				if err != nil {
					return err
				}
				taskID := strings.TrimSpace(args[0])
				b, ok := j.Get(taskID)
				if !ok {
					return fmt.Errorf("task %s is not journaled", taskID)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Task:   %s\n", b.TaskID)
				fmt.Fprintf(out, "Folder: %s\n", b.FolderPath)
				fmt.Fprintf(out, "Share:  %s\n", orDash(b.ShareID))
				fmt.Fprintf(out, "Linked: %s\n", yesNo(b.HasShare()))
				return nil
			})
		},
	}
}

func newJournalForgetCommand(ctx *commandContext) *cobra.Command {
	var revoke bool

	cmd := &cobra.Command{
		Use:   "forget <task-id>",
		Short: "Remove a task from the journal",
		Long:  "Remove a task from the journal. With --revoke the task's public share is deleted in Nextcloud first.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID := strings.TrimSpace(args[0])
			return withStore(cmd, ctx, func(cfg *config.Config, store journal.Store) error {
				if revoke {
					return releaseWithRevoke(cmd.Context(), cfg, store, taskID)
				}
				j, err := store.Load(cmd.Context())
				if err != nil {
					return err
				}
				if !j.Delete(taskID) {
					return fmt.Errorf("task %s is not journaled", taskID)
				}
				if err := store.Save(cmd.Context(), j); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Forgot task %s\n", taskID)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&revoke, "revoke", false, "Also revoke the task's public share")
	return cmd
}

func releaseWithRevoke(ctx context.Context, cfg *config.Config, store journal.Store, taskID string) error {
	j, err := store.Load(ctx)
	if err != nil {
		return err
	}
	if !j.Has(taskID) {
		return fmt.Errorf("task %s is not journaled", taskID)
	}
	cloud := nextcloud.NewConfiguredClient(cfg, nil)
	tracker := megaplan.NewConfiguredClient(cfg, nil)
	provisioner := links.NewProvisioner(cloud, tracker, store, logging.NewNop())
	return provisioner.Release(ctx, taskID, "")
}

func newJournalBackupCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "backup <destination>",
		Short: "Copy the JSON journal file to destination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, ctx, func(_ *config.Config, store journal.Store) error {
				fs, ok := store.(*journal.FileStore)
				if !ok {
					return fmt.Errorf("backup supports the json backend only (current: %s)", journal.Describe(store))
				}
				dest, err := config.ExpandPath(strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if err := fs.Backup(cmd.Context(), dest); err != nil {
					return err
				}
				abs, _ := filepath.Abs(dest)
				fmt.Fprintf(cmd.OutOrStdout(), "Journal copied to %s\n", abs)
				return nil
			})
		},
	}
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
