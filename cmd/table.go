package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ColonelBlimp/cwkeyer/internal/cw"
)

const tableColumns = 4

func newTableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "table",
		Short: "Print the Morse code table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			writeTable(cmd.OutOrStdout(), cw.Table())
			return nil
		},
	}
}

// writeTable prints entries in rows of tableColumns, shortest codes first.
func writeTable(w io.Writer, entries []cw.Entry) {
	for i, e := range entries {
		fmt.Fprintf(w, "%c  %-8s", e.Char, e.Symbol)
		if (i+1)%tableColumns == 0 || i == len(entries)-1 {
			fmt.Fprintln(w)
		} else {
			fmt.Fprint(w, "  ")
		}
	}
}
