package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sqlextract/internal/artifact"
)

func newInspectCmd() *cobra.Command {
	var rows int

	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Print the layout of a produced Parquet file and optionally its first rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			info, err := artifact.Describe(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "file:       %s\n", info.Path)
			fmt.Fprintf(out, "size:       %d bytes\n", info.Size)
			fmt.Fprintf(out, "rows:       %d\n", info.Rows)
			fmt.Fprintf(out, "row groups: %d\n", info.RowGroups)
			fmt.Fprintf(out, "created by: %s\n", info.CreatedBy)
			fmt.Fprintln(out, "columns:")

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for i, c := range info.Columns {
				nullable := ""
				if c.Optional {
					nullable = "nullable"
				}
				fmt.Fprintf(tw, "  [%d]\t%s\t%s\t%s\n", i, c.Name, c.Type, nullable)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if rows <= 0 {
				return nil
			}
			data, err := artifact.ReadRows(cmd.Context(), path, rows)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "---")
			enc := json.NewEncoder(out)
			for _, row := range data.Values {
				obj := make(map[string]any, len(row))
				for i, v := range row {
					obj[data.Columns[i]] = v
				}
				if err := enc.Encode(obj); err != nil {
					return fmt.Errorf("encode row: %w", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&rows, "rows", 0, "print the first N rows as JSON lines")
	return cmd
}
