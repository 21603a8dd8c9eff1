package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fenilsonani/kvstore/internal/store"
)

func newStatsCommand(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print key and object counts for a database file",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.Open(store.Options{Path: *dbPath})
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer s.Close()

			return s.View(func(tx *store.Tx) error {
				keys := tx.Count(store.TreeKeys)
				objects := tx.Count(store.TreeObjects)
				refs := tx.Count(store.TreeRefs)
				fmt.Fprintf(cmd.OutOrStdout(), "keys:    %d\n", keys)
				fmt.Fprintf(cmd.OutOrStdout(), "objects: %d\n", objects)
				fmt.Fprintf(cmd.OutOrStdout(), "refs:    %d\n", refs)
				return nil
			})
		},
	}
}
