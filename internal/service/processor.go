package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tkhuang/riskcast/internal/domain"
	"github.com/tkhuang/riskcast/internal/logger"
	"github.com/tkhuang/riskcast/internal/oracle"
	"github.com/tkhuang/riskcast/internal/queue"
	"github.com/tkhuang/riskcast/internal/storage"
)

// JobStore is the durable job record store consumed by the processor. The
// processing goroutine that owns a job is the sole caller of Transition and
// UpdateProgress for that job ID.
type JobStore interface {
	Get(ctx context.Context, id string) (*domain.BulkJob, error)
	Transition(ctx context.Context, id string, to domain.JobStatus) (*domain.BulkJob, error)
	UpdateProgress(ctx context.Context, id string, processed, successful, failed int, rowErrors []domain.JobError) error
	SetPayloadKey(ctx context.Context, id, key string) error
	SavePayload(ctx context.Context, jobID string, rows []byte) error
	GetPayload(ctx context.Context, jobID string) ([]byte, error)
	DeletePayload(ctx context.Context, jobID string) error
}

// EntityResolver maps entity symbols to company IDs, batched.
type EntityResolver interface {
	ResolveCompanies(ctx context.Context, symbols []string, scope string) (map[string]uint, error)
}

// FactStore persists scored predictions, batched.
type FactStore interface {
	CheckDuplicates(ctx context.Context, keys []domain.PredictionKey) (map[domain.PredictionKey]bool, error)
	BulkInsert(ctx context.Context, predictions []domain.Prediction) error
}

// ProcessorConfig holds configuration for the batch processor.
type ProcessorConfig struct {
	Workers      int
	MinBatchSize int
	MaxBatchSize int
	SoftTimeout  time.Duration
	HardTimeout  time.Duration
}

// BatchProcessor drains bulk jobs from the queue with a resizable pool of
// workers. Each worker owns one job at a time and walks its rows in fixed
// batches: validate, resolve companies, drop duplicates, score, insert,
// commit progress. Failures isolate at row or batch granularity; only an
// unreachable oracle or store fails the whole job.
type BatchProcessor struct {
	jobs      JobStore
	companies EntityResolver
	facts     FactStore
	oracle    oracle.ScoringOracle
	broker    queue.Broker
	collector *queue.Collector
	archive   storage.PayloadStore // optional, nil when object storage is disabled
	logger    *logger.Logger
	cfg       ProcessorConfig

	mu      sync.Mutex
	workers []chan struct{} // per-worker quit channels
	nextID  int
	wg      sync.WaitGroup
	runCtx  context.Context
	stopped bool
}

// NewBatchProcessor creates a new batch processor.
func NewBatchProcessor(
	jobs JobStore,
	companies EntityResolver,
	facts FactStore,
	scoringOracle oracle.ScoringOracle,
	broker queue.Broker,
	collector *queue.Collector,
	log *logger.Logger,
	cfg ProcessorConfig,
) *BatchProcessor {
	if cfg.MinBatchSize <= 0 {
		cfg.MinBatchSize = 100
	}
	if cfg.MaxBatchSize < cfg.MinBatchSize {
		cfg.MaxBatchSize = 500
	}
	if cfg.SoftTimeout <= 0 {
		cfg.SoftTimeout = 25 * time.Minute
	}
	if cfg.HardTimeout <= cfg.SoftTimeout {
		cfg.HardTimeout = cfg.SoftTimeout + 5*time.Minute
	}
	return &BatchProcessor{
		jobs:      jobs,
		companies: companies,
		facts:     facts,
		oracle:    scoringOracle,
		broker:    broker,
		collector: collector,
		logger:    log,
		cfg:       cfg,
	}
}

// WithArchive enables best-effort archival of completed job payloads to an
// object store. Must be called before Start.
func (p *BatchProcessor) WithArchive(store storage.PayloadStore) *BatchProcessor {
	p.archive = store
	return p
}

// log returns the contextual logger for ctx.
func (p *BatchProcessor) log(ctx context.Context) *logger.Logger {
	return logger.FromContext(ctx)
}

// Start spawns the initial worker pool. Workers keep pulling jobs until
// Stop is called or ctx is cancelled.
func (p *BatchProcessor) Start(ctx context.Context) {
	if p.logger != nil {
		ctx = p.logger.WithContext(ctx)
	}
	p.mu.Lock()
	p.runCtx = ctx
	p.stopped = false
	p.mu.Unlock()
	p.Resize(p.cfg.Workers)
}

// Stop signals all workers and waits for in-flight batches to land.
func (p *BatchProcessor) Stop() {
	p.mu.Lock()
	p.stopped = true
	for _, quit := range p.workers {
		close(quit)
	}
	p.workers = nil
	p.mu.Unlock()
	p.wg.Wait()
}

// WorkerCount returns the current pool size.
func (p *BatchProcessor) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// Resize grows or shrinks the pool to target workers. Shrinking signals the
// excess workers; each finishes its current job before exiting.
func (p *BatchProcessor) Resize(target int) {
	if target < 0 {
		target = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || p.runCtx == nil {
		return
	}

	for len(p.workers) < target {
		quit := make(chan struct{})
		p.workers = append(p.workers, quit)
		p.nextID++
		workerID := p.nextID
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runWorker(p.runCtx, workerID, quit)
		}()
	}
	for len(p.workers) > target {
		last := len(p.workers) - 1
		close(p.workers[last])
		p.workers = p.workers[:last]
	}
}

// Submit stores the payload and places the job on its priority lane. The job
// record must already exist in pending state.
func (p *BatchProcessor) Submit(ctx context.Context, job *domain.BulkJob, rawRows []map[string]interface{}) error {
	payload, err := json.Marshal(rawRows)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	if err := p.jobs.SavePayload(ctx, job.ID, payload); err != nil {
		return fmt.Errorf("failed to store payload: %w", err)
	}
	if err := p.broker.Enqueue(ctx, job.ID, job.Priority); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	// Best effort: a worker that dequeues a still-pending job performs this
	// transition itself.
	if _, err := p.jobs.Transition(ctx, job.ID, domain.JobStatusQueued); err != nil {
		p.log(ctx).WithError(err).Warn("Failed to mark job queued")
	}
	return nil
}

func (p *BatchProcessor) runWorker(ctx context.Context, workerID int, quit <-chan struct{}) {
	ctx = logger.SetWorkerID(ctx, workerID)
	p.log(ctx).WithField(logger.FieldWorkerID, workerID).Debug("Worker started")

	for {
		select {
		case <-quit:
			return
		case <-ctx.Done():
			return
		default:
		}

		jobID, priority, err := p.broker.Dequeue(ctx, 5*time.Second)
		if errors.Is(err, queue.ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log(ctx).WithError(err).Error("Failed to dequeue job")
			time.Sleep(2 * time.Second)
			continue
		}

		started := time.Now()
		p.processJob(ctx, jobID)
		if p.collector != nil {
			p.collector.ObserveCompletion(priority, time.Since(started))
		}

		if err := p.broker.MarkDone(ctx, jobID, priority); err != nil {
			p.log(ctx).WithError(err).Warn("Failed to mark job done on broker")
		}
	}
}

// processJob drives one job from queued to a terminal state.
func (p *BatchProcessor) processJob(ctx context.Context, jobID string) {
	ctx = logger.SetJobID(ctx, jobID)
	log := p.log(ctx)

	job, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		log.WithError(err).Error("Failed to load job")
		return
	}
	if job.Status.Terminal() {
		// Cancelled while still on the queue; reap the stored payload.
		if err := p.jobs.DeletePayload(ctx, jobID); err != nil {
			log.WithError(err).Warn("Failed to delete payload")
		}
		return
	}

	if job.Status == domain.JobStatusPending {
		if job, err = p.jobs.Transition(ctx, jobID, domain.JobStatusQueued); err != nil {
			log.WithError(err).Error("Failed to accept job")
			return
		}
	}

	payload, err := p.jobs.GetPayload(ctx, jobID)
	if err != nil {
		log.WithError(err).Error("Failed to load payload")
		p.failJob(ctx, jobID, "payload unavailable")
		return
	}
	var rawRows []map[string]interface{}
	if err := json.Unmarshal(payload, &rawRows); err != nil {
		log.WithError(err).Error("Failed to decode payload")
		p.failJob(ctx, jobID, "payload corrupt")
		return
	}

	// Hard timeout: the runtime cuts the job off; the last committed batch
	// stands (a batch fully lands or not at all).
	jobCtx, cancel := context.WithTimeout(ctx, p.cfg.HardTimeout)
	defer cancel()
	deadline := time.Now().Add(p.cfg.SoftTimeout)

	if job, err = p.jobs.Transition(jobCtx, jobID, domain.JobStatusProcessing); err != nil {
		log.WithError(err).Error("Failed to start job")
		return
	}

	batchSize := clampBatchSize(job.TotalRows, p.cfg.MinBatchSize, p.cfg.MaxBatchSize)
	log.WithFields(logger.Fields{
		"total_rows": job.TotalRows,
		"batch_size": batchSize,
	}).Info("Processing job")

	var processed, successful, failed int
	for start := 0; start < len(rawRows); start += batchSize {
		// Soft timeout: exit cleanly at a batch boundary.
		if time.Now().After(deadline) {
			log.Warn("Soft timeout reached, aborting job")
			p.failJob(jobCtx, jobID, "job exceeded soft time limit")
			return
		}

		// Cooperative cancellation, checked once per batch.
		current, err := p.jobs.Get(jobCtx, jobID)
		if err != nil {
			log.WithError(err).Error("Failed to re-read job, aborting")
			return
		}
		if current.CancelRequested || current.Status == domain.JobStatusCancelled {
			p.cancelJob(jobCtx, current)
			return
		}

		end := start + batchSize
		if end > len(rawRows) {
			end = len(rawRows)
		}
		batchIndex := start / batchSize

		result, fatal := p.processBatch(jobCtx, job, rawRows[start:end], start)
		if fatal != nil {
			log.WithError(fatal).Error("Fatal error, failing job")
			p.failJob(jobCtx, jobID, fatal.Error())
			return
		}

		processed += result.successful + len(result.errors)
		successful += result.successful
		failed += len(result.errors)

		if err := p.jobs.UpdateProgress(jobCtx, jobID, processed, successful, failed, result.errors); err != nil {
			// If progress can't be committed the store is in trouble;
			// continuing would just repeat the failure per batch.
			log.WithError(err).Error("Failed to commit progress, failing job")
			p.failJob(jobCtx, jobID, "job store update failed: "+err.Error())
			return
		}

		logger.With(logger.Fields{
			logger.FieldBatch: batchIndex,
			"processed":       processed,
			"successful":      successful,
			"failed":          failed,
		}).Debug(jobCtx, "Batch committed")
	}

	if _, err := p.jobs.Transition(jobCtx, jobID, domain.JobStatusCompleted); err != nil {
		log.WithError(err).Error("Failed to complete job")
		return
	}
	p.archivePayload(ctx, jobID, payload)
	if err := p.jobs.DeletePayload(jobCtx, jobID); err != nil {
		log.WithError(err).Warn("Failed to delete payload")
	}

	logger.With(logger.Fields{
		"total":      job.TotalRows,
		"successful": successful,
		"failed":     failed,
	}).Info(jobCtx, "Job completed")
}

// batchResult aggregates one batch's outcome. Every failed row carries one
// error entry; the job repo caps what it stores.
type batchResult struct {
	successful int
	errors     []domain.JobError
}

// processBatch runs the six pipeline steps for one slice of rows. A non-nil
// fatal return aborts the whole job; any other failure is folded into the
// result and processing continues with the next batch.
func (p *BatchProcessor) processBatch(ctx context.Context, job *domain.BulkJob, rawRows []map[string]interface{}, baseIndex int) (batchResult, error) {
	var res batchResult

	// Step 1: validate. Failures drop out of the pipeline immediately.
	rows := make([]*domain.Row, 0, len(rawRows))
	for i, raw := range rawRows {
		row, err := ValidateRow(raw, job.JobType, baseIndex+i)
		if err != nil {
			res.errors = append(res.errors, domain.JobError{RowIndex: baseIndex + i, Message: err.Error()})
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return res, nil
	}

	// failBatch fails only the rows handed to it; rows already recorded as
	// validation, duplicate, or per-row scoring failures keep their original
	// error and are never counted twice.
	failBatch := func(failing []*domain.Row, reason string) {
		for _, row := range failing {
			res.errors = append(res.errors, domain.JobError{RowIndex: row.Index, Message: reason})
		}
	}

	// Step 2: resolve companies, one batched call.
	symbols := make([]string, len(rows))
	for i, row := range rows {
		symbols[i] = row.Symbol
	}
	companyIDs, err := p.companies.ResolveCompanies(ctx, symbols, job.Scope)
	if err != nil {
		if isJobFatal(err) {
			return res, err
		}
		failBatch(rows, "entity resolution failed: "+err.Error())
		return res, nil
	}

	// Step 3: duplicate detection against persisted facts and within the
	// batch itself, one batched query.
	keys := make([]domain.PredictionKey, len(rows))
	for i, row := range rows {
		keys[i] = domain.PredictionKey{
			CompanyID:        companyIDs[row.Symbol],
			ReportingYear:    row.ReportingYear,
			ReportingQuarter: row.ReportingQuarter,
			Scope:            job.Scope,
		}
	}
	duplicates, err := p.facts.CheckDuplicates(ctx, keys)
	if err != nil {
		if isJobFatal(err) {
			return res, err
		}
		failBatch(rows, "duplicate check failed: "+err.Error())
		return res, nil
	}

	pending := make([]*domain.Row, 0, len(rows))
	pendingKeys := make([]domain.PredictionKey, 0, len(rows))
	seenInBatch := make(map[domain.PredictionKey]bool, len(rows))
	for i, row := range rows {
		if duplicates[keys[i]] || seenInBatch[keys[i]] {
			res.errors = append(res.errors, domain.JobError{
				RowIndex: row.Index,
				Message:  fmt.Sprintf("prediction for %s %d %s already exists", row.Symbol, row.ReportingYear, row.ReportingQuarter),
			})
			continue
		}
		seenInBatch[keys[i]] = true
		pending = append(pending, row)
		pendingKeys = append(pendingKeys, keys[i])
	}
	if len(pending) == 0 {
		return res, nil
	}

	// Step 4: score, one batched call. Oracle unreachable is job-fatal.
	reqs := make([]oracle.ScoreRequest, len(pending))
	for i, row := range pending {
		reqs[i] = oracle.ScoreRequest{Symbol: row.Symbol, Features: row.Features()}
	}
	results, err := p.oracle.ScoreBatch(ctx, reqs)
	if err != nil {
		if errors.Is(err, domain.ErrOracleUnavailable) || isJobFatal(err) {
			return res, err
		}
		failBatch(pending, "scoring failed: "+err.Error())
		return res, nil
	}

	// Step 5: bulk insert the scored facts.
	facts := make([]domain.Prediction, 0, len(pending))
	scored := make([]*domain.Row, 0, len(pending))
	for i, row := range pending {
		if results[i].Err != nil {
			res.errors = append(res.errors, domain.JobError{RowIndex: row.Index, Message: results[i].Err.Error()})
			continue
		}
		facts = append(facts, domain.Prediction{
			CompanyID:        pendingKeys[i].CompanyID,
			ReportingYear:    pendingKeys[i].ReportingYear,
			ReportingQuarter: pendingKeys[i].ReportingQuarter,
			Scope:            pendingKeys[i].Scope,
			JobID:            job.ID,
			RiskScore:        results[i].RiskScore,
			RiskLabel:        results[i].RiskLabel,
			ModelVersion:     p.oracle.ModelVersion(),
		})
		scored = append(scored, row)
	}
	if len(facts) > 0 {
		if err := p.facts.BulkInsert(ctx, facts); err != nil {
			if isJobFatal(err) {
				return res, err
			}
			// Batch atomicity: the insert failed as a unit, so every row in
			// it fails, including the ones that scored cleanly.
			failBatch(scored, "bulk insert failed: "+err.Error())
			return res, nil
		}
	}

	res.successful = len(scored)
	return res, nil
}

// failJob transitions a job to failed. Counters stay wherever the last
// committed batch left them.
func (p *BatchProcessor) failJob(ctx context.Context, jobID, reason string) {
	if _, err := p.jobs.Transition(ctx, jobID, domain.JobStatusFailed); err != nil {
		p.log(ctx).WithError(err).Error("Failed to mark job failed")
		return
	}
	p.log(ctx).WithField("reason", reason).Warn("Job failed")
}

// cancelJob honors a cancellation request at a batch boundary.
func (p *BatchProcessor) cancelJob(ctx context.Context, job *domain.BulkJob) {
	if job.Status != domain.JobStatusCancelled {
		if _, err := p.jobs.Transition(ctx, job.ID, domain.JobStatusCancelled); err != nil {
			p.log(ctx).WithError(err).Error("Failed to mark job cancelled")
			return
		}
	}
	if err := p.jobs.DeletePayload(ctx, job.ID); err != nil {
		p.log(ctx).WithError(err).Warn("Failed to delete payload")
	}
	p.log(ctx).Info("Job cancelled")
}

// archivePayload copies the raw payload to the object store before the
// database copy is deleted. Best effort: archive failures never affect the
// job outcome.
func (p *BatchProcessor) archivePayload(ctx context.Context, jobID string, payload []byte) {
	if p.archive == nil {
		return
	}
	key := storage.PayloadKey(jobID)
	if err := p.archive.Upload(ctx, key, bytes.NewReader(payload), int64(len(payload)), "application/json"); err != nil {
		p.log(ctx).WithError(err).Warn("Failed to archive payload")
		return
	}
	if err := p.jobs.SetPayloadKey(ctx, jobID, key); err != nil {
		p.log(ctx).WithError(err).Warn("Failed to record payload key")
	}
}

// isJobFatal classifies errors that should abort the whole job rather than
// a single batch.
func isJobFatal(err error) bool {
	return errors.Is(err, domain.ErrStoreUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// clampBatchSize derives the batch size from total rows, bounded between the
// configured floor and ceiling.
func clampBatchSize(totalRows, min, max int) int {
	size := totalRows / 10
	if size < min {
		size = min
	}
	if size > max {
		size = max
	}
	return size
}
