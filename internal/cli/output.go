package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	apperrors "marketdash/internal/errors"
	"marketdash/pkg/utils"
)

// Output handles formatted output for the CLI.
type Output struct {
	writer       io.Writer
	errWriter    io.Writer
	jsonMode     bool
	colorEnabled bool
	currency     string

	green, red, yellow, cyan, bold, dim *color.Color
}

// NewOutput creates a new Output for cmd.
func NewOutput(cmd *cobra.Command, app *App) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")

	colorEnabled := !jsonMode && !color.NoColor
	currency := "EGP"
	if app != nil && app.Config != nil {
		colorEnabled = colorEnabled && app.Config.UI.ColorEnabled
		if app.Config.UI.Currency != "" {
			currency = app.Config.UI.Currency
		}
	}

	o := &Output{
		writer:       cmd.OutOrStdout(),
		errWriter:    cmd.ErrOrStderr(),
		jsonMode:     jsonMode,
		colorEnabled: colorEnabled,
		currency:     currency,
		green:        color.New(color.FgGreen),
		red:          color.New(color.FgRed),
		yellow:       color.New(color.FgYellow),
		cyan:         color.New(color.FgCyan),
		bold:         color.New(color.Bold),
		dim:          color.New(color.Faint),
	}
	for _, c := range []*color.Color{o.green, o.red, o.yellow, o.cyan, o.bold, o.dim} {
		if colorEnabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return o
}

// IsJSON returns true if JSON output mode is enabled.
func (o *Output) IsJSON() bool {
	return o.jsonMode
}

// JSON outputs data as JSON.
func (o *Output) JSON(data interface{}) error {
	encoder := json.NewEncoder(o.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Println prints a message with newline.
func (o *Output) Println(args ...interface{}) {
	fmt.Fprintln(o.writer, args...)
}

// Printf prints a formatted message.
func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}

// Success prints a success message in green.
func (o *Output) Success(format string, args ...interface{}) {
	o.green.Fprintln(o.writer, fmt.Sprintf(format, args...))
}

// Error prints an error message in red.
func (o *Output) Error(format string, args ...interface{}) {
	o.red.Fprintln(o.errWriter, fmt.Sprintf(format, args...))
}

// Toast prints the short user-facing line for err.
func (o *Output) Toast(err error) {
	o.Error("✗ %s", apperrors.UserMessage(err))
}

// Warning prints a warning message in yellow.
func (o *Output) Warning(format string, args ...interface{}) {
	o.yellow.Fprintln(o.writer, fmt.Sprintf(format, args...))
}

// Info prints an info message in cyan.
func (o *Output) Info(format string, args ...interface{}) {
	o.cyan.Fprintln(o.writer, fmt.Sprintf(format, args...))
}

// Bold prints a bold message.
func (o *Output) Bold(format string, args ...interface{}) {
	o.bold.Fprintln(o.writer, fmt.Sprintf(format, args...))
}

// Dim prints a dimmed message.
func (o *Output) Dim(format string, args ...interface{}) {
	o.dim.Fprintln(o.writer, fmt.Sprintf(format, args...))
}

// Empty prints the empty-state line.
func (o *Output) Empty(what string) {
	o.Dim("No %s available", what)
}

// Green returns green text.
func (o *Output) Green(text string) string { return o.green.Sprint(text) }

// Red returns red text.
func (o *Output) Red(text string) string { return o.red.Sprint(text) }

// Yellow returns yellow text.
func (o *Output) Yellow(text string) string { return o.yellow.Sprint(text) }

// DimText returns dimmed text.
func (o *Output) DimText(text string) string { return o.dim.Sprint(text) }

// Money formats an amount in the configured currency.
func (o *Output) Money(amount float64) string {
	return utils.FormatMoney(amount, o.currency)
}

// PnL formats a gain or loss with sign and colour.
func (o *Output) PnL(pnl float64) string {
	return o.signed(pnl, utils.FormatPnL(pnl, o.currency))
}

// Percent formats a percentage with sign and colour.
func (o *Output) Percent(pct float64) string {
	return o.signed(pct, utils.FormatPercent(pct))
}

func (o *Output) signed(v float64, text string) string {
	switch {
	case v > 0:
		return o.Green(text)
	case v < 0:
		return o.Red(text)
	}
	return text
}

// MarketStatus returns a coloured market status label.
func (o *Output) MarketStatus(status utils.MarketStatus) string {
	switch status {
	case utils.MarketOpen:
		return o.Green("● OPEN")
	case utils.MarketPreOpen:
		return o.Yellow("● PRE-OPEN")
	case utils.MarketClosed:
		return o.Red("● CLOSED")
	}
	return string(status)
}

// Table is a simple aligned table.
type Table struct {
	headers []string
	rows    [][]string
	output  *Output
}

// NewTable creates a new table.
func NewTable(output *Output, headers ...string) *Table {
	return &Table{headers: headers, output: output}
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Render renders the table.
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = visibleLen(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && visibleLen(cell) > widths[i] {
				widths[i] = visibleLen(cell)
			}
		}
	}

	header := make([]string, len(t.headers))
	for i, h := range t.headers {
		header[i] = t.output.bold.Sprint(pad(h, widths[i]))
	}
	t.output.Println(strings.TrimRight(strings.Join(header, "  "), " "))

	sep := make([]string, len(widths))
	for i, w := range widths {
		sep[i] = strings.Repeat("─", w)
	}
	t.output.Println(t.output.DimText(strings.Join(sep, "──")))

	for _, row := range t.rows {
		cells := make([]string, 0, len(row))
		for i, cell := range row {
			if i < len(widths) {
				cells = append(cells, pad(cell, widths[i]))
			}
		}
		t.output.Println(strings.TrimRight(strings.Join(cells, "  "), " "))
	}
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func visibleLen(s string) int {
	return utf8.RuneCountInString(ansiPattern.ReplaceAllString(s, ""))
}

func pad(s string, width int) string {
	if n := width - visibleLen(s); n > 0 {
		return s + strings.Repeat(" ", n)
	}
	return s
}

// Box draws a box around content.
func (o *Output) Box(title string, content []string) {
	width := visibleLen(title)
	for _, line := range content {
		if l := visibleLen(line); l > width {
			width = l
		}
	}
	border := strings.Repeat("─", width+2)

	o.Println(o.DimText("┌" + border + "┐"))
	o.Println(o.DimText("│ ") + o.bold.Sprint(pad(title, width)) + o.DimText(" │"))
	o.Println(o.DimText("├" + border + "┤"))
	for _, line := range content {
		o.Println(o.DimText("│ ") + pad(line, width) + o.DimText(" │"))
	}
	o.Println(o.DimText("└" + border + "┘"))
}
