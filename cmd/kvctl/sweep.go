package main

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/fenilsonani/kvstore/internal/store"
)

// newSweepCommand implements the Sweep operation SPEC_FULL §4.C adds: a
// full scan of the objects tree removing any object with zero referrers,
// for recovering from a crash window where an online GC step was skipped.
// Online PUT/DELETE already GC synchronously (spec.md §3 I2); sweep exists
// for the same reason git gc exists alongside automatic loose-object
// cleanup — an offline pass that catches what the online path missed.
//
// kvctl runs offline against the bbolt file directly, with no HTTP
// connection to a live kvserver and therefore no handle on its
// gc_objects_total counter — sweep's own Fprintf count is the operator's
// equivalent signal for this path, not a gap to paper over with a fake
// metrics client.
func newSweepCommand(dbPath *string) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:     "sweep",
		Aliases: []string{"gc"},
		Short:   "Remove objects with no remaining referrers",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.Open(store.Options{Path: *dbPath})
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer s.Close()

			var orphans [][]byte
			err = s.View(func(tx *store.Tx) error {
				return tx.Range(store.TreeObjects, 0, math.MaxInt32, func(k, _ []byte) error {
					if !tx.HasPrefix(store.TreeRefs, k) {
						orphan := make([]byte, len(k))
						copy(orphan, k)
						orphans = append(orphans, orphan)
					}
					return nil
				})
			})
			if err != nil {
				return err
			}

			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%d orphaned object(s) would be removed\n", len(orphans))
				return nil
			}

			err = s.Update(func(tx *store.Tx) error {
				for _, h := range orphans {
					if err := tx.Delete(store.TreeObjects, string(h)); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "removed %d orphaned object(s)\n", len(orphans))
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report orphans without removing them")
	return cmd
}
