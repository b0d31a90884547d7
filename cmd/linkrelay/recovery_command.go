package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func newRecoveryCommand(ctx *commandContext) *cobra.Command {
	recoveryCmd := &cobra.Command{
		Use:   "recovery",
		Short: "Control the share refresh sweep",
	}
	recoveryCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Ask the running daemon to start a sweep now",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Scheduled int `json:"scheduled"`
			}
			if err := ctx.callAPI(cmd.Context(), http.MethodPost, "/api/recovery", &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recovery sweep scheduled %d refreshes\n", resp.Scheduled)
			return nil
		},
	})
	return recoveryCmd
}
