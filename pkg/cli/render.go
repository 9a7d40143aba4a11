package cli

import (
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// outputFormat is the rendering format of tables.
type outputFormat int

const (
	formatTable outputFormat = iota
	formatCSV
	formatHTML
	formatMarkdown
)

// newTable returns a new table writing to out.
func newTable(out io.Writer, title string, header table.Row) table.Writer {
	t := table.NewWriter()

	// Table style
	style := table.Style{
		Name:    "CustomStyleLight",
		Box:     table.StyleBoxLight,
		Color:   table.ColorOptionsDefault,
		HTML:    table.DefaultHTMLOptions,
		Options: table.OptionsDefault,
		Size:    table.SizeOptionsDefault,
		Title:   table.TitleOptionsDefault,
		Format: table.FormatOptions{
			Footer: text.FormatDefault,
			Header: text.FormatUpper,
			Row:    text.FormatDefault,
		},
	}

	t.SuppressTrailingSpaces()
	t.SetStyle(style)
	t.SetOutputMirror(out)
	t.SetTitle(title)
	t.AppendHeader(header)

	return t
}

// render renders t in format.
func render(t table.Writer, format outputFormat) {
	switch format {
	case formatHTML:
		t.RenderHTML()
	case formatCSV:
		t.RenderCSV()
	case formatMarkdown:
		t.RenderMarkdown()
	default:
		t.Render()
	}
}

// joinOrDash joins values or returns a dash when empty.
func joinOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}

	return strings.Join(values, ",")
}

// memory formats a size in bytes with the largest binary unit dividing it.
func memory(bytes uint64) string {
	units := []string{"B", "KiB", "MiB", "GiB", "TiB"}

	i := 0
	for ; i < len(units)-1 && bytes >= 1024 && bytes%1024 == 0; i++ {
		bytes /= 1024
	}

	return strconv.FormatUint(bytes, 10) + units[i]
}
