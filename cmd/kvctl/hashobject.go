package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fenilsonani/kvstore/internal/encode"
)

// newHashObjectCommand computes the content hash a PUT of this data would
// produce, without storing anything — the same plumbing role the teacher's
// hash-object command plays for blobs, retargeted at xxh3_128 content
// addresses instead of SHA-1 blob IDs.
func newHashObjectCommand() *cobra.Command {
	var stdin bool

	cmd := &cobra.Command{
		Use:   "hash-object [file...]",
		Short: "Print the content hash of one or more files without storing them",
		RunE: func(cmd *cobra.Command, args []string) error {
			if stdin || len(args) == 0 {
				return hashOne(cmd, os.Stdin, "-")
			}
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("open %s: %w", path, err)
				}
				err = hashOne(cmd, f, path)
				f.Close()
				if err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&stdin, "stdin", false, "read from stdin instead of a file")
	return cmd
}

func hashOne(cmd *cobra.Command, r io.Reader, label string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read %s: %w", label, err)
	}
	h := encode.Sum(data)
	fmt.Fprintln(cmd.OutOrStdout(), h.String())
	return nil
}
