// Package batch redacts or restores whole datasets through the engine.
// Records are processed one at a time, in file order, so token numbering
// is reproducible for a given input.
package batch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/raaihank/lexmask/internal/jsonedit"
	"github.com/raaihank/lexmask/internal/logger"
	"github.com/raaihank/lexmask/internal/privacy"
	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
)

// Processor is the subset of the engine the pipeline needs.
type Processor interface {
	Redact(ctx context.Context, text string) (privacy.Result, error)
	Restore(text string) string
}

// Pipeline handles dataset processing
type Pipeline struct {
	processor Processor
	config    Config
	logger    *logger.Logger
}

// NewPipeline creates a new pipeline
func NewPipeline(processor Processor, cfg Config, log *logger.Logger) (*Pipeline, error) {
	switch cfg.Mode {
	case ModeRedact, ModeRestore:
	default:
		return nil, fmt.Errorf("invalid mode: %q (must be redact or restore)", cfg.Mode)
	}
	if len(cfg.Columns) == 0 {
		cfg.Columns = []string{"text"}
	}
	return &Pipeline{processor: processor, config: cfg, logger: log.WithComponent("batch")}, nil
}

// ProcessFile reads inputPath and writes the transformed dataset to
// outputPath in the same format. With DryRun nothing is written.
func (p *Pipeline) ProcessFile(ctx context.Context, inputPath, outputPath string) (*ProcessingResult, error) {
	format := DetectFileFormat(inputPath)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unsupported file format: %s", inputPath)
	}

	p.logger.Info("Starting batch run",
		zap.String("input", inputPath),
		zap.String("output", outputPath),
		zap.String("format", string(format)),
		zap.String("mode", string(p.config.Mode)),
		zap.Strings("columns", p.config.Columns),
		zap.Bool("dry_run", p.config.DryRun),
	)

	in, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer in.Close()

	var out io.Writer = io.Discard
	var outFile *os.File
	if !p.config.DryRun {
		if sameFile(in, inputPath, outputPath) {
			return nil, fmt.Errorf("output %s would overwrite the input", outputPath)
		}
		outFile, err = os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output: %w", err)
		}
		defer outFile.Close()
		out = outFile
	}

	start := time.Now()
	result := &ProcessingResult{Findings: make(map[string]int)}

	switch format {
	case FormatCSV:
		err = p.processCSV(ctx, in, out, result)
	case FormatJSONL:
		err = p.processJSONL(ctx, in, out, result)
	case FormatParquet:
		err = p.processParquet(ctx, in, out, result)
	}
	if err != nil {
		return result, fmt.Errorf("%s processing failed: %w", format, err)
	}

	if outFile != nil {
		if err := outFile.Sync(); err != nil {
			return result, fmt.Errorf("failed to sync output: %w", err)
		}
	}

	result.Duration = time.Since(start)
	p.logger.Info("Batch run completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("fields_changed", result.FieldsChanged),
		zap.Any("findings", result.Findings),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// sameFile reports whether outputPath names the already opened input.
func sameFile(in *os.File, inputPath, outputPath string) bool {
	a, errA := filepath.Abs(inputPath)
	b, errB := filepath.Abs(outputPath)
	if errA == nil && errB == nil && a == b {
		return true
	}

	inInfo, err := in.Stat()
	if err != nil {
		return false
	}
	outInfo, err := os.Stat(outputPath)
	if err != nil {
		return false
	}
	return os.SameFile(inInfo, outInfo)
}

// transform applies the configured mode to one field value.
func (p *Pipeline) transform(ctx context.Context, text string, result *ProcessingResult) (string, error) {
	var out string
	if p.config.Mode == ModeRestore {
		out = p.processor.Restore(text)
	} else {
		res, err := p.processor.Redact(ctx, text)
		if err != nil {
			return "", err
		}
		for _, f := range res.Findings {
			result.Findings[string(f.Category)] += f.Count
		}
		out = res.Text
	}

	if out != text {
		result.FieldsChanged++
	}
	return out, nil
}

func (p *Pipeline) recordDone(ctx context.Context, result *ProcessingResult) error {
	result.TotalRecords++
	if p.config.ProgressReport > 0 && result.TotalRecords%int64(p.config.ProgressReport) == 0 {
		p.logger.Info("Processing progress",
			zap.Int64("records_processed", result.TotalRecords),
			zap.Int64("fields_changed", result.FieldsChanged),
		)
	}
	return ctx.Err()
}

// processCSV transforms the configured columns, located by header name.
func (p *Pipeline) processCSV(ctx context.Context, in io.Reader, out io.Writer, result *ProcessingResult) error {
	reader := csv.NewReader(in)
	writer := csv.NewWriter(out)

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	var columns []int
	for _, name := range p.config.Columns {
		i, ok := index[name]
		if !ok {
			return fmt.Errorf("column %q not found in header %v", name, header)
		}
		columns = append(columns, i)
	}

	if err := writer.Write(header); err != nil {
		return err
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read CSV record %d: %w", result.TotalRecords+1, err)
		}

		for _, i := range columns {
			if i >= len(record) {
				continue
			}
			if record[i], err = p.transform(ctx, record[i], result); err != nil {
				return fmt.Errorf("record %d: %w", result.TotalRecords+1, err)
			}
		}

		if err := writer.Write(record); err != nil {
			return err
		}
		if err := p.recordDone(ctx, result); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// processJSONL transforms the configured top-level string fields of one
// JSON object per line. All other bytes of a record are copied unchanged.
func (p *Pipeline) processJSONL(ctx context.Context, in io.Reader, out io.Writer, result *ProcessingResult) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	writer := bufio.NewWriter(out)

	selected := make(map[string]bool, len(p.config.Columns))
	for _, c := range p.config.Columns {
		selected[c] = true
	}

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if bytes.TrimSpace(line)[0] != '{' {
			return fmt.Errorf("JSON record %d is not an object", result.TotalRecords+1)
		}

		edited, err := jsonedit.MapStrings(line, func(field string, depth int, text string) (string, error) {
			if depth != 1 || !selected[field] {
				return text, nil
			}
			return p.transform(ctx, text, result)
		})
		if err != nil {
			return fmt.Errorf("record %d: %w", result.TotalRecords+1, err)
		}

		writer.Write(edited)
		writer.WriteByte('\n')

		if err := p.recordDone(ctx, result); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read JSON lines: %w", err)
	}

	return writer.Flush()
}

// processParquet transforms the text column of {id, text} rows.
func (p *Pipeline) processParquet(ctx context.Context, in *os.File, out io.Writer, result *ProcessingResult) error {
	reader := parquet.NewReader(in)
	defer reader.Close()

	writer := parquet.NewGenericWriter[Record](out)

	for {
		var record Record
		err := reader.Read(&record)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read Parquet record %d: %w", result.TotalRecords+1, err)
		}

		if record.Text, err = p.transform(ctx, record.Text, result); err != nil {
			return fmt.Errorf("record %d: %w", result.TotalRecords+1, err)
		}

		if _, err := writer.Write([]Record{record}); err != nil {
			return err
		}
		if err := p.recordDone(ctx, result); err != nil {
			return err
		}
	}

	return writer.Close()
}
