package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-runewidth"
	"gopkg.in/yaml.v3"

	"fwdctl/internal/forward"
)

// OutputFormat represents the output format for CLI commands
type OutputFormat string

const (
	OutputFormatTable OutputFormat = "table"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatYAML  OutputFormat = "yaml"
)

const maxCellWidth = 40

// ParseOutputFormat validates a --output value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case OutputFormatTable, OutputFormatJSON, OutputFormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s (use table, json or yaml)", s)
	}
}

// Printer renders forwards for the terminal.
type Printer struct {
	Out    io.Writer
	Format OutputFormat
	Quiet  bool
}

// PrintForwards renders a list of forwards.
func (p *Printer) PrintForwards(snaps []forward.Snapshot) error {
	switch p.Format {
	case OutputFormatJSON:
		return p.outputJSON(snaps)
	case OutputFormatYAML:
		return p.outputYAML(snaps)
	}

	if len(snaps) == 0 {
		if !p.Quiet {
			fmt.Fprintln(p.Out, text.FgYellow.Sprint("No forwards defined"))
		}
		return nil
	}

	t := p.newTable()
	t.AppendHeader(table.Row{"ID", "NAME", "PORTS", "CONTEXT", "NAMESPACE", "STATUS", "PID", "LOGS"})
	for _, snap := range snaps {
		def := snap.Definition
		t.AppendRow(table.Row{
			shortID(def.ID),
			truncate(def.Name),
			def.PortSpec(),
			optional(def.Context),
			optional(def.Namespace),
			formatStatus(snap),
			formatPID(snap.PID),
			snap.LogCount,
		})
	}
	t.Render()

	if !p.Quiet {
		fmt.Fprintf(p.Out, "\n%s %d %s\n", text.FgHiBlue.Sprint("Total:"), len(snaps), pluralize("forward", len(snaps)))
	}
	return nil
}

// PrintForward renders one forward with all its fields.
func (p *Printer) PrintForward(snap forward.Snapshot) error {
	switch p.Format {
	case OutputFormatJSON:
		return p.outputJSON(snap)
	case OutputFormatYAML:
		return p.outputYAML(snap)
	}

	def := snap.Definition
	t := p.newTable()
	t.AppendRows([]table.Row{
		{"ID", def.ID},
		{"Name", def.Name},
		{"Ports", def.PortSpec()},
		{"Context", optional(def.Context)},
		{"Namespace", optional(def.Namespace)},
		{"Enabled", def.Enabled},
		{"Status", formatStatus(snap)},
		{"PID", formatPID(snap.PID)},
		{"Command", "kubectl " + strings.Join(def.Args(), " ")},
		{"Log lines", snap.LogCount},
	})
	t.Render()
	return nil
}

// PrintLogs writes log lines verbatim, one per line.
func (p *Printer) PrintLogs(lines []string) {
	for _, line := range lines {
		fmt.Fprintln(p.Out, line)
	}
}

// Messagef prints a status line unless Quiet is set.
func (p *Printer) Messagef(format string, args ...any) {
	if p.Quiet {
		return
	}
	fmt.Fprintf(p.Out, format+"\n", args...)
}

func (p *Printer) newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(p.Out)
	t.SetStyle(table.StyleRounded)
	return t
}

func (p *Printer) outputJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(p.Out, string(data))
	return nil
}

// outputYAML goes through JSON so field names match the API.
func (p *Printer) outputYAML(v any) error {
	jsonData, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var data any
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	yamlData, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to convert to YAML: %w", err)
	}
	fmt.Fprint(p.Out, string(yamlData))
	return nil
}

// formatStatus colours the status. A pending launch is shown as starting.
func formatStatus(snap forward.Snapshot) string {
	if snap.Launching {
		return text.FgYellow.Sprint("starting")
	}
	switch snap.Status {
	case forward.StatusActive:
		return text.FgGreen.Sprint(string(snap.Status))
	case forward.StatusFailed:
		return text.FgRed.Sprint(string(snap.Status))
	default:
		return text.FgHiBlack.Sprint(string(snap.Status))
	}
}

func formatPID(pid int) string {
	if pid == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", pid)
}

func optional(p *string) string {
	if v, ok := forward.Value(p); ok {
		return truncate(v)
	}
	return "-"
}

func truncate(s string) string {
	return runewidth.Truncate(s, maxCellWidth, "...")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func pluralize(word string, n int) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
