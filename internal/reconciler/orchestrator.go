// Package reconciler runs the transaction integrity pipeline: it validates
// and cleans a transaction table, removes exact and near duplicates, and
// reconstructs the daily balance of every account from its one snapshot.
//
// Each stage returns fresh slices and never mutates its input. The
// pipeline checks its context between stages only; a stage that has
// started always runs to completion.
//
// Example usage:
//
//	pipeline, err := reconciler.NewIntegrityPipeline(reconciler.DefaultConfig(), log)
//	pipeline.AddProgressCallback(func(p *reconciler.PipelineProgress) {
//		fmt.Printf("%.0f%% %s\n", p.PercentComplete, p.CurrentStep)
//	})
//	result, err := pipeline.Run(ctx, transactions)
package reconciler

import (
	"context"
	"sync"
	"time"

	"transaction-integrity-engine/internal/balance"
	"transaction-integrity-engine/internal/matcher"
	"transaction-integrity-engine/internal/models"
	"transaction-integrity-engine/pkg/errors"
	"transaction-integrity-engine/pkg/logger"

	"github.com/google/uuid"
)

// Pipeline stage names, in execution order.
const (
	StagePreprocess  = "preprocess"
	StageDeduplicate = "deduplicate"
	StageBalances    = "reconstruct_balances"
	StageAnnotate    = "annotate"
)

var stageOrder = []string{StagePreprocess, StageDeduplicate, StageBalances, StageAnnotate}

// IntegrityPipeline wires the preprocessor, the duplicate detector and the
// balance reconstructor together.
type IntegrityPipeline struct {
	config        *Config
	preprocessor  *DataPreprocessor
	detector      *matcher.DuplicateDetector
	reconstructor *balance.Reconstructor
	logger        logger.Logger

	progressCallbacks []ProgressCallback
	progressMutex     sync.Mutex
}

// PipelineProgress tracks the progress of a run
type PipelineProgress struct {
	RunID           string        `json:"run_id"`
	TotalSteps      int           `json:"total_steps"`
	CompletedSteps  int           `json:"completed_steps"`
	CurrentStep     string        `json:"current_step"`
	PercentComplete float64       `json:"percent_complete"`
	StartTime       time.Time     `json:"start_time"`
	ElapsedTime     time.Duration `json:"elapsed_time"`
}

// ProgressCallback is called before each stage and once when the run
// completes.
type ProgressCallback func(*PipelineProgress)

// NewIntegrityPipeline creates a pipeline. A nil config uses the defaults.
func NewIntegrityPipeline(config *Config, log logger.Logger) (*IntegrityPipeline, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "pipeline", config, err).
			WithSuggestion("Use at least one worker")
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	detector, err := matcher.NewDuplicateDetector(config.DuplicateConfig(), log)
	if err != nil {
		return nil, err
	}
	reconstructor, err := balance.NewReconstructor(config.BalanceConfig(), log)
	if err != nil {
		return nil, err
	}

	pipelineLog := log.WithComponent("integrity_pipeline")
	pipelineLog.WithFields(logger.Fields{
		"workers":           config.Workers,
		"examine_all_pairs": config.ExamineAllPairs,
	}).Debug("Created integrity pipeline")

	return &IntegrityPipeline{
		config:        config,
		preprocessor:  NewDataPreprocessor(config.Preprocessing, log),
		detector:      detector,
		reconstructor: reconstructor,
		logger:        pipelineLog,
	}, nil
}

// AddProgressCallback adds a progress callback function
func (p *IntegrityPipeline) AddProgressCallback(callback ProgressCallback) {
	p.progressMutex.Lock()
	defer p.progressMutex.Unlock()
	p.progressCallbacks = append(p.progressCallbacks, callback)
}

// Run takes the transaction table through every stage. Malformed rows
// abort the run; accounts whose balance cannot be reconstructed are
// reported in the summary instead.
func (p *IntegrityPipeline) Run(ctx context.Context, transactions []*models.Transaction) (*IntegrityResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	runID := uuid.NewString()
	log := p.logger.WithField("run_id", runID)

	log.WithField("rows_in", len(transactions)).Info("Starting integrity run")

	result := &IntegrityResult{
		RunID:           runID,
		Summary:         &ResultSummary{RowsIn: len(transactions)},
		ProcessingStats: &ProcessingStats{},
		ProcessedAt:     start,
	}
	progress := &PipelineProgress{
		RunID:      runID,
		TotalSteps: len(stageOrder),
		StartTime:  start,
	}

	var (
		cleaned    []*models.Transaction
		duplicates *matcher.DuplicateReport
		balances   *balance.Result
	)

	stages := map[string]func() error{
		StagePreprocess: func() error {
			var stats *PreprocessStats
			var err error
			cleaned, stats, err = p.preprocessor.PreprocessTransactions(transactions)
			result.Summary.Preprocessing = stats
			return err
		},
		StageDeduplicate: func() error {
			var err error
			duplicates, err = p.detector.Detect(cleaned)
			return err
		},
		StageBalances: func() error {
			var err error
			balances, err = p.reconstructor.Reconstruct(duplicates.Kept)
			return err
		},
		StageAnnotate: func() error {
			result.Rows = p.reconstructor.Annotate(duplicates.Kept, balances)
			return nil
		},
	}

	for i, stage := range stageOrder {
		if err := ctx.Err(); err != nil {
			log.WithField("stage", stage).Warn("Integrity run cancelled")
			return nil, errors.InternalError(errors.CodeCancelled, "integrity_pipeline", err).
				WithContext("stage", stage)
		}

		p.notify(progress, stage, i)
		if err := p.runStage(stage, log, result.ProcessingStats, stages[stage]); err != nil {
			return nil, err
		}
	}

	result.Duplicates = duplicates
	result.Balances = balances
	p.summarize(result)

	elapsed := time.Since(start)
	result.Summary.ProcessingDuration = elapsed
	result.ProcessingStats.TotalProcessingTime = elapsed
	if elapsed > 0 {
		result.ProcessingStats.RecordsPerSecond = float64(len(transactions)) / elapsed.Seconds()
	}
	p.notify(progress, "completed", len(stageOrder))

	log.WithFields(logger.Fields{
		"rows_in":              result.Summary.RowsIn,
		"rows_out":             result.Summary.RowsOut,
		"type1_dropped":        result.Summary.Type1Dropped,
		"type2_dropped":        result.Summary.Type2Dropped,
		"candidate_groups":     result.Summary.CandidateGroups,
		"accounts_unanchored":  result.Summary.AccountsUnanchored,
		"accounts_no_snapshot": result.Summary.AccountsNoSnapshot,
		"duration":             elapsed.String(),
	}).Info("Integrity run completed")

	return result, nil
}

// runStage times fn and converts plain errors into integrity failures.
func (p *IntegrityPipeline) runStage(stage string, log logger.Logger, stats *ProcessingStats, fn func() error) error {
	stageStart := time.Now()
	err := logger.TimedOperation(stage, log, fn)
	stats.Stages = append(stats.Stages, StageTiming{Stage: stage, Duration: time.Since(stageStart)})
	if err == nil {
		return nil
	}

	if ie, ok := errors.AsIntegrityError(err); ok {
		return ie.WithContext("stage", stage)
	}
	code := errors.CodeProcessingError
	switch stage {
	case StageDeduplicate:
		code = errors.CodeDeduplicationFailed
	case StageBalances:
		code = errors.CodeBalanceFailed
	}
	return errors.IntegrityFailure(code, stage, err)
}

func (p *IntegrityPipeline) summarize(result *IntegrityResult) {
	s := result.Summary

	s.Type1Dropped = len(result.Duplicates.Type1Dropped)
	s.Type2Dropped = len(result.Duplicates.Type2Dropped)
	s.CandidateGroups = result.Duplicates.CandidateGroups
	s.RowsOut = len(result.Rows)

	s.Accounts = len(result.Balances.Accounts)
	s.AccountsUnanchored = len(result.Balances.Unanchored)
	s.AccountsNoSnapshot = len(result.Balances.NoSnapshot)
	s.AccountsAvailable = s.Accounts - s.AccountsUnanchored - s.AccountsNoSnapshot
	s.UnanchoredAccounts = result.Balances.Unanchored
	s.NoSnapshotAccounts = result.Balances.NoSnapshot
	s.InconsistentSnapshots = result.Balances.InconsistentSnapshots

	for _, row := range result.Rows {
		if row.Balance.IsAvailable() {
			s.RowsWithBalance++
		} else {
			s.RowsWithoutBalance++
		}
	}
}

func (p *IntegrityPipeline) notify(progress *PipelineProgress, step string, completed int) {
	p.progressMutex.Lock()
	defer p.progressMutex.Unlock()

	progress.CurrentStep = step
	progress.CompletedSteps = completed
	progress.ElapsedTime = time.Since(progress.StartTime)
	progress.PercentComplete = float64(completed) / float64(progress.TotalSteps) * 100

	for _, callback := range p.progressCallbacks {
		snapshot := *progress
		callback(&snapshot)
	}
}
