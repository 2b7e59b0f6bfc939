package cli

import (
	"fmt"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"

	"github.com/linuxmatters/corti/internal/archive"
)

// Help styles
var (
	helpTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Italic(true).
			MarginBottom(1)

	helpSectionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(accentColor).
				MarginTop(1)

	helpFlagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00AA00")).
			Bold(true)

	helpCodeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00AAAA"))

	helpDefaultStyle = lipgloss.NewStyle().
				Foreground(mutedColor).
				Italic(true)
)

// generalGroup holds flags declared without a group tag.
const generalGroup = "General"

// examples are shown at the end of --help.
var examples = []struct{ cmd, what string }{
	{"corti -l 40,60,80", "default click at three levels"},
	{"corti -c tone.yaml --save cvp --logs", "template stimulus, spikes saved, with a report"},
	{"corti --wav speech.wav -l 65 --hum auto", "recording with the local mains hum removed"},
	{"corti --sections 200 --no-brainstem", "quick periphery-only run"},
}

// StyledHelpPrinter renders --help with flags grouped the way the CLI
// struct groups them, followed by the save flag legend and examples.
func StyledHelpPrinter(options kong.HelpOptions) func(options kong.HelpOptions, ctx *kong.Context) error {
	return func(options kong.HelpOptions, ctx *kong.Context) error {
		var sb strings.Builder

		sb.WriteString(helpTitleStyle.Render("Corti 🐌"))
		sb.WriteString("\n")
		sb.WriteString(helpDescStyle.Render("Cochlea, auditory nerve and brainstem response simulator"))
		sb.WriteString("\n")

		sb.WriteString(helpSectionStyle.Render("Usage:"))
		fmt.Fprintf(&sb, "\n  %s [flags]\n", ctx.Model.Name)

		sb.WriteString(renderFlagGroups(collectFlags(ctx.Model.Node.Flags)))
		sb.WriteString(renderSaveFlags())
		sb.WriteString(renderExamples())

		sb.WriteString("\n")
		fmt.Fprint(ctx.Stdout, sb.String())
		return nil
	}
}

// flagRow is one rendered flag.
type flagRow struct {
	group string
	names string // "-l, --level=STRING"
	help  string
	def   string
}

func collectFlags(flags []*kong.Flag) []flagRow {
	rows := []flagRow{{group: generalGroup, names: "-h, --help", help: "Show this help."}}
	for _, f := range flags {
		if f.Name == "help" || f.Hidden {
			continue
		}
		group := generalGroup
		if f.Group != nil && f.Group.Title != "" {
			group = f.Group.Title
		}
		rows = append(rows, flagRow{group: group, names: f.String(), help: f.Help, def: f.Default})
	}
	return rows
}

// renderFlagGroups prints one section per group, in order of first
// appearance, with the help text aligned across all groups.
func renderFlagGroups(rows []flagRow) string {
	width := 0
	var order []string
	byGroup := make(map[string][]flagRow)
	for _, r := range rows {
		width = max(width, len(r.names))
		if _, ok := byGroup[r.group]; !ok {
			order = append(order, r.group)
		}
		byGroup[r.group] = append(byGroup[r.group], r)
	}

	var sb strings.Builder
	for _, g := range order {
		sb.WriteString("\n")
		sb.WriteString(helpSectionStyle.Render(g + ":"))
		sb.WriteString("\n")
		for _, r := range byGroup[g] {
			sb.WriteString("  ")
			sb.WriteString(helpFlagStyle.Render(r.names))
			sb.WriteString(strings.Repeat(" ", width-len(r.names)+2))
			sb.WriteString(r.help)
			if r.def != "" {
				sb.WriteString(" ")
				sb.WriteString(helpDefaultStyle.Render("(default: " + r.def + ")"))
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func renderSaveFlags() string {
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(helpSectionStyle.Render("Save flags (--save):"))
	sb.WriteString("\n")
	for _, line := range archive.Describe() {
		sb.WriteString("  ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("  ")
	sb.WriteString(helpDefaultStyle.Render("(default: " + archive.DefaultFlags + ")"))
	sb.WriteString("\n")
	return sb.String()
}

func renderExamples() string {
	width := 0
	for _, e := range examples {
		width = max(width, len(e.cmd))
	}
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(helpSectionStyle.Render("Examples:"))
	sb.WriteString("\n")
	for _, e := range examples {
		sb.WriteString("  ")
		sb.WriteString(helpCodeStyle.Render(e.cmd))
		sb.WriteString(strings.Repeat(" ", width-len(e.cmd)+2))
		sb.WriteString(helpDefaultStyle.Render(e.what))
		sb.WriteString("\n")
	}
	return sb.String()
}
