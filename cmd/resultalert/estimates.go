package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shanehull/resultalert/internal/store"
)

var estimatesCmd = &cobra.Command{
	Use:   "estimates",
	Short: "Manage analyst estimates",
}

var estimatesLoadCmd = &cobra.Command{
	Use:   "load <file.yaml>",
	Short: "Seed analyst estimates from a YAML file into redis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rdb, err := connectRedis(ctx)
		if err != nil {
			return err
		}
		if rdb == nil {
			return fmt.Errorf("estimates live in redis; set redis.url or REDIS_URL")
		}
		defer rdb.Close()

		ests, err := store.LoadEstimatesFile(args[0])
		if err != nil {
			return err
		}
		n, err := store.NewEstimates(rdb, cfg.Estimates.TTL).PutAll(ctx, ests)
		if err != nil {
			return err
		}
		logger.Info().Int("count", n).Str("file", args[0]).Dur("ttl", cfg.Estimates.TTL).Msg("estimates loaded")
		fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d estimates from %s\n", n, args[0])
		return nil
	},
}

func init() {
	estimatesCmd.AddCommand(estimatesLoadCmd)
}
