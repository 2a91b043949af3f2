package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"bulkload/internal/schema"
)

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the record models that can be loaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Model", "Table", "Columns"})
			for _, name := range schema.Names() {
				m, _ := schema.Lookup(name)
				t.AppendRow(table.Row{name, m.Table.Schema + "." + m.Table.Name, len(m.Table.Eligible())})
			}
			t.Render()
			return nil
		},
	}
}
