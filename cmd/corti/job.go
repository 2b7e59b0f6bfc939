package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/linuxmatters/corti/internal/archive"
	"github.com/linuxmatters/corti/internal/config"
	"github.com/linuxmatters/corti/internal/logging"
	"github.com/linuxmatters/corti/internal/mains"
	"github.com/linuxmatters/corti/internal/params"
	"github.com/linuxmatters/corti/internal/pipeline"
	"github.com/linuxmatters/corti/internal/stimulus"
)

// job is one invocation: a stimulus set through one model, saved to one
// run directory.
type job struct {
	tmpl         *config.Template
	params       params.ModelParameters
	set          stimulus.Set
	flags        archive.Flags
	root         string
	orchestrator *pipeline.Orchestrator
	logger       *slog.Logger
	report       bool
}

// result is what a finished job leaves behind.
type result struct {
	dir       string
	summaries []logging.Summary
}

func newJob(t *config.Template, logger *slog.Logger, report bool) (*job, error) {
	p, err := t.ModelParameters()
	if err != nil {
		return nil, err
	}
	set, err := t.Stimuli()
	if err != nil {
		return nil, err
	}
	flags, err := archive.ParseFlags(t.Output.Save)
	if err != nil {
		return nil, err
	}
	root, err := expandHome(t.Output.Directory)
	if err != nil {
		return nil, err
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithConcurrency(levelConcurrency(len(set), p.Workers)),
	}
	model, enabled, err := t.BrainstemModel()
	if err != nil {
		return nil, err
	}
	if enabled {
		opts = append(opts, pipeline.WithBrainstemModel(model))
	} else {
		opts = append(opts, pipeline.WithoutBrainstem())
	}
	if t.Model.Seed != nil {
		opts = append(opts, pipeline.WithSeed(*t.Model.Seed))
	}

	return &job{
		tmpl:         t,
		params:       p,
		set:          set,
		flags:        flags,
		root:         root,
		orchestrator: pipeline.New(opts...),
		logger:       logger,
		report:       report,
	}, nil
}

// levelConcurrency runs as many levels at once as the CPUs left over by
// the per-run workers allow.
func levelConcurrency(levels, workers int) int {
	n := runtime.NumCPU() / max(workers, 1)
	return min(max(n, 1), max(levels, 1))
}

func (j *job) warnings() []string {
	var out []string
	for _, f := range j.flags.Unsupported() {
		out = append(out, fmt.Sprintf("save flag '%c' is not supported and will be ignored", f))
	}
	return out
}

// run simulates every level, then writes the archive, provenance and
// report into a fresh run directory.
func (j *job) run(ctx context.Context) (*result, error) {
	start := time.Now()
	j.logger.Info("simulation started",
		"stimulus", j.set[0].Name,
		"levels", j.set.Levels(),
		"sections", j.params.SectionCount,
	)
	if strings.EqualFold(strings.TrimSpace(j.tmpl.Stimulus.Hum), "auto") {
		j.logger.Info("mains hum", "detected", mains.Detect().String())
	}

	bundles, err := j.orchestrator.RunSet(ctx, j.set, j.params)
	if err != nil {
		return nil, err
	}

	dir, err := archive.NewRunDir(j.root, start)
	if err != nil {
		return nil, fmt.Errorf("creating run directory: %w", err)
	}
	w := archive.NewWriter(dir, j.flags)

	prov := archive.Provenance{
		Version: version,
		Created: start,
		Flags:   j.tmpl.Output.Save,
		Config:  j.tmpl,
	}
	res := &result{dir: dir}
	var files []string
	for _, b := range bundles {
		written, err := w.Write(ctx, b)
		if err != nil {
			return nil, err
		}
		files = append(files, written...)
		prov.Runs = append(prov.Runs, archive.Record(b, written))
		res.summaries = append(res.summaries, logging.Summarize(b))
	}
	if err := archive.WriteProvenance(dir, prov); err != nil {
		return nil, err
	}

	if j.report {
		path, err := logging.GenerateReport(logging.ReportData{
			Dir:       dir,
			Stimulus:  j.set[0].Name,
			StartTime: start,
			EndTime:   time.Now(),
			Params:    j.params,
			Summaries: res.summaries,
			Files:     files,
		})
		if err != nil {
			j.logger.Warn("report not written", "error", err)
		} else {
			j.logger.Info("report written", "path", path)
		}
	}

	if j.tmpl.Output.Clean {
		root := filepath.Dir(dir)
		removed, err := archive.Clean(root, dir)
		if err != nil {
			return nil, fmt.Errorf("cleaning %s: %w", root, err)
		}
		j.logger.Info("previous runs removed", "count", len(removed))
	}

	j.logger.Info("simulation completed", "dir", dir, "elapsed", time.Since(start))
	return res, nil
}
