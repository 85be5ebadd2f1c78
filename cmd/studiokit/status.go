package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/studiokit/studiokit/internal/config"
	"github.com/studiokit/studiokit/internal/store"
	"github.com/studiokit/studiokit/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report local cache and queue state",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	cache, err := store.NewCacheStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer cache.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "database: %s\n", cfg.Database.Path)

	for _, collection := range types.Collections {
		rows, err := cache.ListRows(ctx, collection, cfg.Remote.OwnerID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%-20s %d rows\n", collection, len(rows))
	}

	pending, err := cache.CountUnsettled(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "pending operations: %d\n", pending)

	if pending > 0 {
		ops, err := cache.ListUnsettled(ctx)
		if err != nil {
			return err
		}
		for _, op := range ops {
			line := fmt.Sprintf("  #%d %s %s/%s", op.ID, op.Type, op.Collection, op.TargetID)
			if op.LastError != "" {
				line += fmt.Sprintf(" (last error: %s)", op.LastError)
			}
			fmt.Fprintln(out, line)
		}
	}

	return nil
}
