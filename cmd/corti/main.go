package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/linuxmatters/corti/internal/cli"
	"github.com/linuxmatters/corti/internal/config"
	"github.com/linuxmatters/corti/internal/logging"
	"github.com/linuxmatters/corti/internal/ui"
)

var (
	version = "0.1.0"
)

const debugLogFile = "corti-debug.log"

// CLI defines the command-line interface
type CLI struct {
	Version        bool   `short:"v" help:"Show version information" group:"general"`
	Config         string `short:"c" type:"existingfile" help:"YAML simulation template (optional)" group:"general"`
	DescribeConfig bool   `name:"describe-config" help:"Describe the template keys and exit" group:"general"`

	WAV   string `name:"wav" type:"existingfile" help:"Recording to present instead of the template stimulus" group:"stimulus"`
	Level string `short:"l" help:"Stimulus levels in dB SPL, e.g. \"40,60,80\"" group:"stimulus"`
	Hum   string `help:"Mains hum notch for recordings: off, auto, 50 or 60" group:"stimulus"`

	Sections      int    `help:"Cochlear sections" group:"model"`
	Workers       int    `short:"w" help:"Parallel workers, one per CPU when unset" group:"model"`
	Neuropathy    string `help:"none, mild, moderate, severe or an ls- variant" group:"model"`
	NoCFWeighting bool   `name:"no-cf-weighting" help:"Do not weight brainstem input by characteristic frequency" group:"model"`
	Brainstem     string `help:"Brainstem model: NELSON_CARNEY_2004 or CARNEY_2015" group:"model"`
	NoBrainstem   bool   `name:"no-brainstem" help:"Stop after the auditory nerve" group:"model"`
	Seed          string `placeholder:"N" help:"Spike generator seed, random when unset" group:"model"`

	Out   string `short:"o" type:"path" help:"Root output directory" group:"output"`
	Save  string `short:"s" help:"Components to save, see below" group:"output"`
	Clean bool   `help:"Remove earlier runs from the output directory" group:"output"`
	Logs  bool   `help:"Write a report alongside the results" group:"output"`

	Verbose bool `help:"Write a debug log to corti-debug.log" group:"diagnostics"`
	Plain   bool `help:"Print plain output instead of the terminal UI" group:"diagnostics"`
}

func main() {
	cliArgs := &CLI{}
	kctx := kong.Parse(cliArgs,
		kong.Name("corti"),
		kong.Description("Cochlea, auditory nerve and brainstem response simulator"),
		kong.UsageOnError(),
		kong.Groups{
			"general":     "General",
			"stimulus":    "Stimulus",
			"model":       "Model",
			"output":      "Output",
			"diagnostics": "Diagnostics",
		},
		kong.Vars{
			"version": version,
		},
		kong.Help(cli.StyledHelpPrinter(kong.HelpOptions{Compact: true})),
	)

	if cliArgs.Version {
		cli.PrintVersion(version)
		os.Exit(0)
	}
	if cliArgs.DescribeConfig {
		fmt.Print(config.Describe())
		os.Exit(0)
	}

	tmpl := config.Default()
	if cliArgs.Config != "" {
		var err error
		if tmpl, err = config.Load(cliArgs.Config); err != nil {
			cli.PrintError(err.Error())
			os.Exit(1)
		}
	}
	if err := cliArgs.apply(tmpl); err != nil {
		cli.PrintError(err.Error())
		kctx.PrintUsage(false)
		os.Exit(1)
	}

	logFile, err := logging.OpenLogFile(tmpl.Logging.File)
	if err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}
	var logger *slog.Logger
	if logFile != nil {
		defer logFile.Close()
		logger = logging.NewLogger(tmpl.Logging.Level, logFile)
	} else {
		logger = slog.New(slog.DiscardHandler)
	}
	stopBridge := logging.Bridge(logger)
	defer stopBridge()

	job, err := newJob(tmpl, logger, cliArgs.Logs || cliArgs.Verbose)
	if err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}
	for _, warning := range job.warnings() {
		cli.PrintWarning(warning)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if cliArgs.Plain || !isatty.IsTerminal(os.Stdout.Fd()) {
		err = runPlain(ctx, job, os.Stdout)
	} else {
		err = runUI(ctx, cancel, job)
	}
	if err != nil {
		logger.Error("simulation failed", "error", err)
		cli.PrintError(err.Error())
		os.Exit(1)
	}
}

// runPlain simulates without the terminal UI.
func runPlain(ctx context.Context, job *job, w io.Writer) error {
	fmt.Fprintf(w, "Simulating %s at %d level(s)...\n", job.set[0].Name, len(job.set))
	res, err := job.run(ctx)
	if err != nil {
		return err
	}
	logging.DisplaySummary(w, res.summaries)
	fmt.Fprintf(w, "\nResults saved to %s\n", res.dir)
	return nil
}

// runUI simulates behind the Bubbletea progress view.
func runUI(ctx context.Context, cancel context.CancelFunc, job *job) error {
	model := ui.NewModel(job.set[0].Name, job.set.Levels(), job.orchestrator.Stages())
	stopForward := ui.Forward(model.ProgressChan)
	defer stopForward()

	p := tea.NewProgram(model, tea.WithAltScreen())

	go func() {
		res, err := job.run(ctx)
		msg := ui.AllCompleteMsg{Error: err}
		if err == nil {
			msg.Summaries = res.summaries
			msg.Dir = res.dir
		}
		p.Send(msg)
	}()

	final, err := p.Run()
	if err != nil {
		cancel()
		return fmt.Errorf("UI error: %w", err)
	}
	m := final.(ui.Model)
	if !m.Done {
		// Quit before the simulation finished.
		cancel()
		return context.Canceled
	}
	if m.Error != nil {
		return m.Error
	}
	// The alt screen is gone once Run returns; repeat the summary.
	logging.DisplaySummary(os.Stdout, m.Summaries)
	fmt.Printf("\nResults saved to %s\n", m.OutputDir)
	return nil
}
