package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Inspect and reset the processed-results gate",
}

var dedupClearCmd = &cobra.Command{
	Use:   "clear [symbol]",
	Short: "Delete processed records for one symbol, or all of them",
	Long: `Delete processed:* records so the next poll treats those results as new.
Without a symbol every record is removed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rdb, err := connectRedis(ctx)
		if err != nil {
			return err
		}
		if rdb != nil {
			defer rdb.Close()
		}

		gate, err := openGate(rdb)
		if err != nil {
			return err
		}
		defer gate.Close()

		sym := ""
		if len(args) == 1 {
			sym = strings.ToUpper(args[0])
		}
		n, err := gate.Clear(ctx, sym)
		if err != nil {
			return err
		}

		target := "all symbols"
		if sym != "" {
			target = sym
		}
		logger.Info().Int("deleted", n).Str("backend", cfg.Dedup.Backend).Msg("dedup records cleared")
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d processed records for %s\n", n, target)
		return nil
	},
}

func init() {
	dedupCmd.AddCommand(dedupClearCmd)
}
