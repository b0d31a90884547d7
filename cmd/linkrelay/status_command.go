package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"linkrelay/internal/daemonrun"
	"linkrelay/internal/httpapi"
	"linkrelay/internal/journal"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and journal status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			var status httpapi.StatusResponse
			apiErr := ctx.callAPI(cmd.Context(), http.MethodGet, "/api/status", &status)
			if jsonOut {
				if apiErr != nil {
					return apiErr
				}
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, "linkrelay status")
			if apiErr != nil {
				fmt.Fprintln(out, renderStatusLine("Daemon", statusError, apiErr.Error(), colorize))
				if pid := daemonrun.ReadPID(cfg); pid > 0 {
					fmt.Fprintln(out, renderStatusLine("PID file", statusWarn, fmt.Sprintf("pid %d recorded", pid), colorize))
				}
				store, err := journal.Open(cmd.Context(), cfg)
				if err != nil {
					fmt.Fprintln(out, renderStatusLine("Journal", statusError, err.Error(), colorize))
					return nil
				}
				defer store.Close()
				j, err := store.Load(cmd.Context())
				if err != nil {
					fmt.Fprintln(out, renderStatusLine("Journal", statusError, err.Error(), colorize))
					return nil
				}
				fmt.Fprintln(out, renderStatusLine("Journal", statusInfo, fmt.Sprintf("%s (%d records)", journal.Describe(store), j.Len()), colorize))
				return nil
			}

			fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("up %s", time.Duration(status.UptimeSeconds)*time.Second), colorize))
			fmt.Fprintln(out, renderStatusLine("Journal", statusInfo, fmt.Sprintf("%s (%d records)", status.Journal, status.JournalRecords), colorize))
			fmt.Fprintln(out, renderStatusLine("In-flight jobs", statusInfo, fmt.Sprint(status.InflightJobs), colorize))

			rec := status.Recovery
			kind := statusOK
			if rec.State != "running" {
				kind = statusWarn
			}
			detail := rec.State
			if !rec.NextRun.IsZero() {
				detail += ", next " + rec.NextRun.Format(time.RFC3339)
			}
			fmt.Fprintln(out, renderStatusLine("Recovery", kind, detail, colorize))
			if !rec.LastRun.IsZero() {
				fmt.Fprintln(out, renderStatusLine("Last sweep", statusInfo,
					fmt.Sprintf("%s, %d scheduled", rec.LastRun.Format(time.RFC3339), rec.LastScheduled), colorize))
			}
			if strings.TrimSpace(rec.LastError) != "" {
				fmt.Fprintln(out, renderStatusLine("Last error", statusError, rec.LastError, colorize))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the daemon status as JSON")
	return cmd
}
