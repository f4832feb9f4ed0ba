package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/citeguard/citeguard/internal/detect"
	"github.com/citeguard/citeguard/internal/gather"
	"github.com/citeguard/citeguard/internal/model"
	"github.com/citeguard/citeguard/internal/parse"
	"github.com/citeguard/citeguard/internal/score"
	"github.com/citeguard/citeguard/internal/verify"
)

type emptySearcher struct{}

func (s *emptySearcher) Name() string { return "empty" }

func (s *emptySearcher) Search(ctx context.Context, query string, limit int) ([]model.EvidenceRecord, error) {
	return nil, nil
}

func newOfflineChecker() *verify.Checker {
	parser := parse.NewParser(nil, nil)
	gatherer := gather.New(&emptySearcher{}, nil, gather.Options{})
	matcher := score.NewMatcher(nil, nil)
	return verify.NewChecker(parser, gatherer, matcher, false, nil)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestBatchChecker_CheckPaths(t *testing.T) {
	dir := t.TempDir()
	withCitation := writeFile(t, dir, "a.txt", "Results follow (Smith et al., 2020) closely.")
	withoutCitation := writeFile(t, dir, "b.txt", "Plain prose with nothing to check.")
	missing := filepath.Join(dir, "missing.txt")

	b := NewBatchChecker(detect.NewDetector(), newOfflineChecker(), 2)
	results := b.CheckPaths(context.Background(), []string{withCitation, withoutCitation, missing})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	byPath := make(map[string]*FileResult, len(results))
	for _, r := range results {
		byPath[r.Path] = r
	}

	if r := byPath[withCitation]; r.Error != nil || len(r.Spans) != 1 || len(r.Results) != 1 {
		t.Errorf("unexpected result for citation file: %+v", r)
	}
	if r := byPath[withoutCitation]; r.Error != nil || len(r.Spans) != 0 {
		t.Errorf("unexpected result for plain file: %+v", r)
	}
	if r := byPath[missing]; r.Error == nil {
		t.Error("expected error for missing file")
	}
}

func TestBatchChecker_EmptyInput(t *testing.T) {
	b := NewBatchChecker(detect.NewDetector(), newOfflineChecker(), 2)
	if results := b.CheckPaths(context.Background(), nil); len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestReadPathsFromFile(t *testing.T) {
	dir := t.TempDir()
	list := writeFile(t, dir, "list.txt", `
# manifest
docs/a.txt
docs/b.txt

docs/a.txt
# trailing comment
`)

	paths, err := ReadPathsFromFile(list)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := []string{"docs/a.txt", "docs/b.txt"}
	if len(paths) != len(want) {
		t.Fatalf("expected %d paths, got %v", len(want), paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("path %d: got %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestReadPathsFromFile_Missing(t *testing.T) {
	if _, err := ReadPathsFromFile("/does/not/exist.txt"); err == nil {
		t.Error("expected error for missing manifest")
	}
}

func TestBatchChecker_CheckListFile(t *testing.T) {
	dir := t.TempDir()
	doc := writeFile(t, dir, "doc.txt", "(Jones et al., 2021) observed the effect.")
	list := writeFile(t, dir, "list.txt", doc+"\n")

	b := NewBatchChecker(detect.NewDetector(), newOfflineChecker(), 1)
	results, err := b.CheckListFile(context.Background(), list)
	if err != nil {
		t.Fatalf("check list: %v", err)
	}
	if len(results) != 1 || results[0].Error != nil {
		t.Fatalf("unexpected results %+v", results)
	}
	if len(results[0].Results) != 1 {
		t.Errorf("expected 1 citation result, got %d", len(results[0].Results))
	}
}
