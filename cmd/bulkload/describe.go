package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"bulkload/internal/bulk"
	"bulkload/internal/schema"
)

func newDescribeCmd() *cobra.Command {
	var markdown bool

	cmd := &cobra.Command{
		Use:   "describe <model>",
		Short: "Print the column descriptor table of a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, ok := schema.Lookup(args[0])
			if !ok {
				return fmt.Errorf("unknown model %q; known: %s", args[0], strings.Join(schema.Names(), ", "))
			}
			c, err := m.Open(strings.NewReader(""))
			if err != nil {
				return err
			}
			defer c.Close()
			cols, err := c.Columns()
			if err != nil {
				return err
			}
			s, t := c.Schema()
			fmt.Fprintf(cmd.OutOrStdout(), "%s.%s\n", s, t)
			renderColumns(cmd.OutOrStdout(), cols, markdown)
			return nil
		},
	}
	cmd.Flags().BoolVar(&markdown, "markdown", false, "render as a Markdown table")
	return cmd
}

func renderColumns(w io.Writer, cols []bulk.ColumnDescriptor, markdown bool) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Name", "Type", "Native", "Null", "Key", "Unique", "Size", "Precision", "Scale"})
	for _, c := range cols {
		native := ""
		if c.NativeType != nil {
			native = c.NativeType.String()
		}
		t.AppendRow(table.Row{
			c.Ordinal, c.Name, c.TypeName, native,
			flag(c.Nullable), flag(c.Key), flag(c.Unique),
			optInt(c.Size), optInt(c.Precision), optInt(c.Scale),
		})
	}
	if markdown {
		t.RenderMarkdown()
		return
	}
	t.Render()
}

func flag(b bool) string {
	if b {
		return "yes"
	}
	return ""
}

func optInt(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}
