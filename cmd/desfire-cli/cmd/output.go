package cmd

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

var (
	colorHeader = text.Colors{text.FgCyan, text.Bold}
	colorLabel  = text.Colors{text.FgYellow}
	colorValue  = text.Colors{text.FgWhite}
)

func newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	style := table.StyleRounded
	style.Color.Header = colorHeader
	style.Options.SeparateRows = false
	t.SetStyle(style)
	if title != "" {
		t.SetTitle(title)
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 18},
		{Number: 2, Colors: colorValue, WidthMin: 30},
	})
	return t
}
