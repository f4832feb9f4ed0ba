package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/citeguard/citeguard/internal/detect"
	"github.com/citeguard/citeguard/internal/model"
	"github.com/citeguard/citeguard/internal/verify"
)

// FileResult is the outcome of checking one document.
type FileResult struct {
	Path    string
	Spans   []model.CitationSpan
	Results []model.FactCheckResult
	Error   error
}

// GetError returns the file-level error, nil when the document was
// checked (individual citations may still carry status error).
func (r *FileResult) GetError() error {
	return r.Error
}

// checkJob detects and verifies the citations in one file.
type checkJob struct {
	path     string
	detector *detect.Detector
	checker  *verify.Checker
}

func (j *checkJob) Execute(ctx context.Context) Result {
	data, err := os.ReadFile(j.path)
	if err != nil {
		return &FileResult{Path: j.path, Error: fmt.Errorf("read file: %w", err)}
	}

	spans := j.detector.Detect(string(data))
	results := j.checker.VerifyBatch(ctx, spans, nil)
	return &FileResult{Path: j.path, Spans: spans, Results: results}
}

// BatchChecker fact-checks multiple documents concurrently.
type BatchChecker struct {
	detector    *detect.Detector
	checker     *verify.Checker
	concurrency int
}

// NewBatchChecker creates a batch checker running up to concurrency
// documents at once.
func NewBatchChecker(detector *detect.Detector, checker *verify.Checker, concurrency int) *BatchChecker {
	return &BatchChecker{
		detector:    detector,
		checker:     checker,
		concurrency: concurrency,
	}
}

// CheckPaths fact-checks each document and returns one result per path.
// Order follows completion, not submission.
func (b *BatchChecker) CheckPaths(ctx context.Context, paths []string) []*FileResult {
	if len(paths) == 0 {
		return []*FileResult{}
	}

	pool := NewPool(b.concurrency)
	pool.Start()

	for _, path := range paths {
		pool.Submit(&checkJob{path: path, detector: b.detector, checker: b.checker})
	}

	results := pool.Wait()
	fileResults := make([]*FileResult, len(results))
	for i, result := range results {
		fileResults[i] = result.(*FileResult)
	}
	return fileResults
}

// CheckListFile reads document paths from a manifest file, one per line,
// and checks them all.
func (b *BatchChecker) CheckListFile(ctx context.Context, listPath string) ([]*FileResult, error) {
	paths, err := ReadPathsFromFile(listPath)
	if err != nil {
		return nil, fmt.Errorf("read path list: %w", err)
	}
	return b.CheckPaths(ctx, paths), nil
}

// ReadPathsFromFile reads one path per line, skipping blanks, comments
// and duplicates.
func ReadPathsFromFile(listPath string) ([]string, error) {
	file, err := os.Open(listPath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var paths []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !seen[line] {
			seen[line] = true
			paths = append(paths, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	return paths, nil
}
