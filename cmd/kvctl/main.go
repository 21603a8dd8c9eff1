// Command kvctl is the offline administration tool for a kvstore database
// file: it opens the bbolt file directly, the way the teacher's plumbing
// commands operate straight on a repository's object database rather than
// through a running server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "kvctl:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:           "kvctl",
		Short:         "Offline administration for a kvstore database file",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&dbPath, "db", "./kv_db", "path to the store's database file")

	cmd.AddCommand(
		newInspectCommand(&dbPath),
		newSweepCommand(&dbPath),
		newHashObjectCommand(),
		newStatsCommand(&dbPath),
	)

	return cmd
}
