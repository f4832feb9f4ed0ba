package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/citeguard/citeguard/internal/detect"
	"github.com/citeguard/citeguard/internal/model"
	"github.com/citeguard/citeguard/internal/task"
	"github.com/citeguard/citeguard/internal/verify"
)

// Service is the public surface of the fact checker: synchronous citation
// detection plus start-and-poll asynchronous verification.
type Service struct {
	detector    *detect.Detector
	checker     *verify.Checker
	engine      *task.Engine
	taskTimeout time.Duration
	logger      *zap.Logger
}

// Options configures a Service.
type Options struct {
	TaskTimeout time.Duration
	Logger      *zap.Logger
}

// New wires a service from its collaborators.
func New(detector *detect.Detector, checker *verify.Checker, engine *task.Engine, opts Options) *Service {
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 2 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		detector:    detector,
		checker:     checker,
		engine:      engine,
		taskTimeout: opts.TaskTimeout,
		logger:      logger,
	}
}

// DetectCitations finds likely citations in text. Synchronous and
// side-effect free.
func (s *Service) DetectCitations(text string) []model.CitationSpan {
	return s.detector.Detect(text)
}

// BatchResult is the terminal payload of a verification task.
type BatchResult struct {
	Results []model.FactCheckResult `json:"results"`
	Summary Summary                 `json:"summary"`
}

// Summary counts results per status.
type Summary struct {
	Total        int `json:"total"`
	Verified     int `json:"verified"`
	Partial      int `json:"partial"`
	NotFound     int `json:"not_found"`
	Contradicted int `json:"contradicted"`
	Errors       int `json:"errors"`
}

// Summarize tallies a result set.
func Summarize(results []model.FactCheckResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case model.StatusVerified:
			s.Verified++
		case model.StatusPartial:
			s.Partial++
		case model.StatusNotFound:
			s.NotFound++
		case model.StatusContradicted:
			s.Contradicted++
		case model.StatusError:
			s.Errors++
		}
	}
	return s
}

// StartVerification detects citations in text and starts a background
// task verifying them all. It returns the task ID to poll, along with
// the spans that will be verified. A text with no detectable citations
// still produces a task, one that completes immediately with an empty
// result set.
func (s *Service) StartVerification(text string, callbacks ...task.Callback) (string, []model.CitationSpan, error) {
	spans := s.detector.Detect(text)
	id := task.NewTaskID()

	fn := func(ctx context.Context, report task.ProgressFunc) (any, error) {
		results := s.checker.VerifyBatch(ctx, spans, func(fraction float64, latest model.FactCheckResult) {
			report(fraction, latest)
		})
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("verification interrupted: %w", err)
		}
		return BatchResult{Results: results, Summary: Summarize(results)}, nil
	}

	if err := s.engine.CreateTask(id, fn, s.taskTimeout, callbacks...); err != nil {
		return "", nil, err
	}

	s.logger.Info("verification started",
		zap.String("task", id), zap.Int("citations", len(spans)))
	return id, spans, nil
}

// VerifySpans starts a background task verifying the given spans
// directly, for callers that already ran detection.
func (s *Service) VerifySpans(spans []model.CitationSpan, callbacks ...task.Callback) (string, error) {
	id := task.NewTaskID()
	fn := func(ctx context.Context, report task.ProgressFunc) (any, error) {
		results := s.checker.VerifyBatch(ctx, spans, func(fraction float64, latest model.FactCheckResult) {
			report(fraction, latest)
		})
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("verification interrupted: %w", err)
		}
		return BatchResult{Results: results, Summary: Summarize(results)}, nil
	}
	if err := s.engine.CreateTask(id, fn, s.taskTimeout, callbacks...); err != nil {
		return "", err
	}
	return id, nil
}

// Poll returns the current state of a verification task.
func (s *Service) Poll(id string) (task.Task, bool) {
	return s.engine.GetTask(id)
}

// Wait polls until the task reaches a terminal state or the context
// expires. Intended for CLI use; services should poll instead.
func (s *Service) Wait(ctx context.Context, id string, interval time.Duration) (task.Task, error) {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		t, ok := s.engine.GetTask(id)
		if !ok {
			return task.Task{}, fmt.Errorf("unknown task %s", id)
		}
		if t.Status.Terminal() {
			return t, nil
		}
		select {
		case <-ctx.Done():
			return t, ctx.Err()
		case <-ticker.C:
		}
	}
}

// CleanupOldTasks removes tasks created more than maxAge ago.
func (s *Service) CleanupOldTasks(maxAge time.Duration) int {
	return s.engine.CleanupOldTasks(maxAge)
}
