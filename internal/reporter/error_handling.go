package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"transaction-integrity-engine/internal/models"
	"transaction-integrity-engine/internal/reconciler"
	"transaction-integrity-engine/pkg/errors"
	"transaction-integrity-engine/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with input checks, logging and
// categorized errors for file output.
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator with error handling
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"report_config",
			config,
			err,
		).WithSuggestion("Use one of the report formats: console, json, yaml")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely writes the run summary to writer
func (srg *SafeReportGenerator) GenerateReportSafely(result *reconciler.IntegrityResult, writer io.Writer) error {
	srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"output": getWriterDescription(writer),
	}).Debug("Starting report generation")

	if result == nil || result.Summary == nil {
		return errors.ValidationError(errors.CodeMissingField, "result", nil, nil).
			WithSuggestion("Run the pipeline before generating a report")
	}
	if writer == nil {
		return errors.ValidationError(errors.CodeMissingField, "writer", nil, nil).
			WithSuggestion("Provide a valid output writer")
	}

	if err := srg.GenerateReport(result, writer); err != nil {
		srg.logger.WithError(err).Error("Report generation failed")
		return srg.wrapGenerationError(err)
	}

	srg.logger.WithField("run_id", result.RunID).Debug("Report generation completed")
	return nil
}

// WriteReportFile writes the run summary to path.
func (srg *SafeReportGenerator) WriteReportFile(result *reconciler.IntegrityResult, path string) error {
	return srg.writeFile(path, func(w io.Writer) error {
		return srg.GenerateReportSafely(result, w)
	})
}

// WriteRowsFile writes the cleaned table to path. The file only appears
// once every row has been written.
func (srg *SafeReportGenerator) WriteRowsFile(rows []*models.AnnotatedTransaction, path string) error {
	err := srg.writeFile(path, func(w io.Writer) error {
		if err := srg.WriteRows(rows, w); err != nil {
			return srg.wrapGenerationError(err)
		}
		return nil
	})
	if err == nil {
		srg.logger.WithFields(logger.Fields{
			"path": path,
			"rows": len(rows),
		}).Info("Wrote cleaned transaction table")
	}
	return err
}

// writeFile writes through a temporary file in the target directory and
// renames it into place.
func (srg *SafeReportGenerator) writeFile(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return srg.fileError(path, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return srg.fileError(path, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return srg.fileError(path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return srg.fileError(path, err)
	}
	return nil
}

func (srg *SafeReportGenerator) fileError(path string, err error) error {
	srg.logger.WithError(err).WithField("path", path).Error("Failed to write output file")

	switch {
	case os.IsPermission(err):
		return errors.FileError(errors.CodeFilePermission, path, err)
	case os.IsNotExist(err):
		return errors.FileError(errors.CodeFileNotFound, path, err)
	default:
		return errors.FileError(errors.CodeDirectoryError, path, err).
			WithSuggestion("Check that the output directory exists and has free space")
	}
}

// wrapGenerationError wraps generation errors with context
func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if ie, ok := errors.AsIntegrityError(err); ok {
		return ie
	}

	return errors.InternalError(
		errors.CodeProcessingError,
		"report_generation",
		err,
	).WithSuggestion("Check the output destination and report format settings")
}

func getWriterDescription(writer io.Writer) string {
	switch w := writer.(type) {
	case *os.File:
		if w.Name() != "" {
			return fmt.Sprintf("file:%s", w.Name())
		}
		return "file:unnamed"
	default:
		return fmt.Sprintf("writer:%T", writer)
	}
}
