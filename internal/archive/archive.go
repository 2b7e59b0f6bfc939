// Package archive writes simulation results to disk: Arrow IPC tables per
// stimulus level and a YAML record of how they were produced.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/zoobzio/capitan"

	"github.com/linuxmatters/corti/internal/anf"
	"github.com/linuxmatters/corti/internal/events"
	"github.com/linuxmatters/corti/internal/pipeline"
)

// File name parts.
const (
	sectionsSuffix = "sections.arrow"
	signalsSuffix  = "signals.arrow"
	spikesSuffix   = "spikes.arrow"
	ProvenanceFile = "conf.yaml"
)

// Writer saves bundles into one run directory.
type Writer struct {
	dir   string
	flags Flags
	mem   memory.Allocator
}

// NewWriter returns a writer for dir, which must exist.
func NewWriter(dir string, flags Flags) *Writer {
	return &Writer{dir: dir, flags: flags, mem: memory.NewGoAllocator()}
}

// Dir returns the run directory.
func (w *Writer) Dir() string { return w.dir }

// Prefix names the files of one level, e.g. "periphery-60dB".
func Prefix(level float64) string {
	return "periphery-" + strconv.FormatFloat(level, 'f', -1, 64) + "dB"
}

// Write saves the flagged components of b and returns the files written.
func (w *Writer) Write(ctx context.Context, b *pipeline.ResponseBundle) ([]string, error) {
	prefix := Prefix(b.Stimulus.Level())
	var written []string

	type table struct {
		suffix string
		build  func(*pipeline.ResponseBundle) (arrow.Record, error)
	}
	for _, t := range []table{
		{sectionsSuffix, w.sections},
		{signalsSuffix, w.signals},
		{spikesSuffix, w.spikes},
	} {
		rec, err := t.build(b)
		if err != nil {
			return written, err
		}
		if rec == nil {
			continue
		}
		path := filepath.Join(w.dir, prefix+"-"+t.suffix)
		err = writeRecord(path, rec)
		rec.Release()
		if err != nil {
			return written, err
		}
		written = append(written, path)
		capitan.Info(ctx, events.ArchiveWritten,
			events.RunIDKey.Field(b.RunID),
			events.PathKey.Field(path),
		)
	}
	return written, nil
}

func writeRecord(path string, rec arrow.Record) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	fw, err := ipc.NewFileWriter(f, ipc.WithSchema(rec.Schema()))
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return fw.Close()
}

func (w *Writer) metadata(b *pipeline.ResponseBundle) *arrow.Metadata {
	keys := []string{"run_id", "seed", "sample_rate"}
	values := []string{
		b.RunID,
		strconv.FormatUint(b.Seed, 10),
		strconv.FormatFloat(b.ParametersUsed.SampleRate, 'g', -1, 64),
	}
	if w.flags.Has(StimulusLevel) {
		keys = append(keys, "level_db")
		values = append(values, strconv.FormatFloat(b.Stimulus.Level(), 'g', -1, 64))
	}
	md := arrow.NewMetadata(keys, values)
	return &md
}

var float64List = arrow.ListOf(arrow.PrimitiveTypes.Float64)

// sections has one row per cochlear section.
func (w *Writer) sections(b *pipeline.ResponseBundle) (arrow.Record, error) {
	bm, an := b.BasilarMembrane, b.AuditoryNerve
	type column struct {
		flag   Flag
		name   string
		series [][]float64
	}
	var cols []column
	for _, c := range []column{
		{Velocity, "velocity", bm.Velocity},
		{Displacement, "displacement", bm.Displacement},
		{InnerHairCell, "ihc", an.Receptor},
		{HighSRRates, "rate_high", an.Rates[anf.HighSR]},
		{LowSRRates, "rate_low", an.Rates[anf.LowSR]},
	} {
		if w.flags.Has(c.flag) {
			cols = append(cols, c)
		}
	}
	withCF := w.flags.Has(CenterFrequencies)
	if len(cols) == 0 && !withCF {
		return nil, nil
	}

	fields := []arrow.Field{{Name: "section", Type: arrow.PrimitiveTypes.Int32}}
	if withCF {
		fields = append(fields, arrow.Field{Name: "cf", Type: arrow.PrimitiveTypes.Float64})
	}
	for _, c := range cols {
		fields = append(fields, arrow.Field{Name: c.name, Type: float64List})
	}
	rb := array.NewRecordBuilder(w.mem, arrow.NewSchema(fields, w.metadata(b)))
	defer rb.Release()

	for s := 0; s < bm.Sections(); s++ {
		rb.Field(0).(*array.Int32Builder).Append(int32(s))
		next := 1
		if withCF {
			rb.Field(next).(*array.Float64Builder).Append(bm.CF[s])
			next++
		}
		for i, c := range cols {
			lb := rb.Field(next + i).(*array.ListBuilder)
			lb.Append(true)
			if s < len(c.series) {
				lb.ValueBuilder().(*array.Float64Builder).AppendValues(c.series[s], nil)
			}
		}
	}
	return rb.NewRecord(), nil
}

// signals has one row per sample.
func (w *Writer) signals(b *pipeline.ResponseBundle) (arrow.Record, error) {
	type column struct {
		name   string
		values []float64
	}
	var cols []column
	if w.flags.Has(Stimulus) {
		cols = append(cols, column{"stimulus", b.Stimulus.Samples})
	}
	if w.flags.Has(Emission) {
		cols = append(cols, column{"emission", b.BasilarMembrane.Emission})
	}
	if w.flags.Has(Brainstem) && b.Brainstem != nil {
		bs := b.Brainstem
		cols = append(cols,
			column{"wave1", bs.Wave1},
			column{"wave3", bs.Wave3},
			column{"wave5", bs.Wave5},
			column{"response", bs.Response},
		)
	}
	if len(cols) == 0 {
		return nil, nil
	}

	n := b.BasilarMembrane.Samples()
	fs := b.BasilarMembrane.SampleRate
	fields := []arrow.Field{{Name: "time", Type: arrow.PrimitiveTypes.Float64}}
	for _, c := range cols {
		if len(c.values) != n {
			return nil, fmt.Errorf("%s has %d samples, want %d", c.name, len(c.values), n)
		}
		fields = append(fields, arrow.Field{Name: c.name, Type: arrow.PrimitiveTypes.Float64})
	}
	rb := array.NewRecordBuilder(w.mem, arrow.NewSchema(fields, w.metadata(b)))
	defer rb.Release()

	times := make([]float64, n)
	for i := range times {
		times[i] = float64(i) / fs
	}
	rb.Field(0).(*array.Float64Builder).AppendValues(times, nil)
	for i, c := range cols {
		rb.Field(i+1).(*array.Float64Builder).AppendValues(c.values, nil)
	}
	return rb.NewRecord(), nil
}

// spikes has one row per fiber.
func (w *Writer) spikes(b *pipeline.ResponseBundle) (arrow.Record, error) {
	if !w.flags.Has(SpikeTrains) {
		return nil, nil
	}
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "fiber_id", Type: arrow.PrimitiveTypes.Int32},
		{Name: "section", Type: arrow.PrimitiveTypes.Int32},
		{Name: "class", Type: arrow.BinaryTypes.String},
		{Name: "threshold_db", Type: arrow.PrimitiveTypes.Float64},
		{Name: "spike_times", Type: float64List},
	}, w.metadata(b))
	rb := array.NewRecordBuilder(w.mem, schema)
	defer rb.Release()

	for _, tr := range b.AuditoryNerve.Trains {
		rb.Field(0).(*array.Int32Builder).Append(int32(tr.FiberID))
		rb.Field(1).(*array.Int32Builder).Append(int32(tr.Section))
		rb.Field(2).(*array.StringBuilder).Append(tr.Class.String())
		rb.Field(3).(*array.Float64Builder).Append(tr.ThresholdDB)
		lb := rb.Field(4).(*array.ListBuilder)
		lb.Append(true)
		lb.ValueBuilder().(*array.Float64Builder).AppendValues(tr.SpikeTimes, nil)
	}
	return rb.NewRecord(), nil
}

// Table is a decoded archive file.
type Table struct {
	Metadata map[string]string
	Columns  map[string][]float64   // scalar numeric columns
	Series   map[string][][]float64 // list columns, one slice per row
	Strings  map[string][]string
}

// Read decodes an archive file written by Writer.
func Read(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	defer r.Close()

	t := &Table{
		Metadata: make(map[string]string),
		Columns:  make(map[string][]float64),
		Series:   make(map[string][][]float64),
		Strings:  make(map[string][]string),
	}
	md := r.Schema().Metadata()
	for i, k := range md.Keys() {
		t.Metadata[k] = md.Values()[i]
	}

	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		for c := 0; c < int(rec.NumCols()); c++ {
			name := rec.ColumnName(c)
			switch col := rec.Column(c).(type) {
			case *array.Float64:
				t.Columns[name] = append(t.Columns[name], col.Float64Values()...)
			case *array.Int32:
				for _, v := range col.Int32Values() {
					t.Columns[name] = append(t.Columns[name], float64(v))
				}
			case *array.String:
				for j := 0; j < col.Len(); j++ {
					t.Strings[name] = append(t.Strings[name], col.Value(j))
				}
			case *array.List:
				values := col.ListValues().(*array.Float64).Float64Values()
				for j := 0; j < col.Len(); j++ {
					start, end := col.ValueOffsets(j)
					t.Series[name] = append(t.Series[name], append([]float64(nil), values[start:end]...))
				}
			default:
				return nil, fmt.Errorf("reading %s: unsupported column %s of type %s", path, name, col.DataType())
			}
		}
	}
	return t, nil
}

// Timestamp formats run directory names.
const Timestamp = "2006-01-02_15-04-05"

// markerFile identifies a directory as a corti output root.
const markerFile = ".corti-output"

// RootName is the subdirectory used when the requested output directory
// already holds files corti did not write.
const RootName = "corti-output"

// OutputRoot resolves dir to an output root. A missing or empty directory
// becomes the root, a marked one is reused, and any other directory gets a
// corti-output subdirectory. Only roots resolved here carry the marker.
func OutputRoot(dir string) (string, error) {
	return outputRoot(dir, true)
}

func outputRoot(dir string, descend bool) (string, error) {
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
		return dir, mark(dir)
	case err != nil:
		return "", err
	case !info.IsDir():
		return "", fmt.Errorf("%s is not a directory", dir)
	}
	if IsOutputRoot(dir) {
		return dir, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return dir, mark(dir)
	}
	if !descend || filepath.Base(dir) == RootName {
		return "", fmt.Errorf("%s holds files not written by corti", dir)
	}
	return outputRoot(filepath.Join(dir, RootName), false)
}

// IsOutputRoot reports whether dir carries the output marker.
func IsOutputRoot(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, markerFile))
	return err == nil
}

func mark(dir string) error {
	return os.WriteFile(filepath.Join(dir, markerFile), nil, 0o644)
}

// NewRunDir resolves the output root for dir and creates a timestamped run
// directory inside it.
func NewRunDir(dir string, now time.Time) (string, error) {
	root, err := OutputRoot(dir)
	if err != nil {
		return "", err
	}
	base := now.Format(Timestamp)
	run := filepath.Join(root, base)
	for i := 1; ; i++ {
		err := os.Mkdir(run, 0o755)
		if err == nil {
			return run, nil
		}
		if !os.IsExist(err) {
			return "", err
		}
		run = filepath.Join(root, fmt.Sprintf("%s.%d", base, i))
	}
}

// Clean removes every earlier run directory under root except keep. Only
// marked roots are cleaned, and only directories with a timestamp name and
// a corti provenance file count as runs.
func Clean(root, keep string) ([]string, error) {
	if !IsOutputRoot(root) {
		return nil, nil
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, e := range entries {
		if !e.IsDir() || e.Name() == filepath.Base(keep) {
			continue
		}
		path := filepath.Join(root, e.Name())
		if !isRunDir(path) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			return removed, err
		}
		removed = append(removed, path)
	}
	return removed, nil
}

// isRunDir matches the names NewRunDir produces and requires provenance.
func isRunDir(path string) bool {
	name := filepath.Base(path)
	if len(name) < len(Timestamp) {
		return false
	}
	if _, err := time.Parse(Timestamp, name[:len(Timestamp)]); err != nil {
		return false
	}
	if suffix := name[len(Timestamp):]; suffix != "" {
		if suffix[0] != '.' {
			return false
		}
		if _, err := strconv.Atoi(suffix[1:]); err != nil {
			return false
		}
	}
	p, err := ReadProvenance(path)
	return err == nil && p.Version != ""
}
