package service

import (
	"context"
	"testing"
	"time"

	"github.com/citeguard/citeguard/internal/detect"
	"github.com/citeguard/citeguard/internal/gather"
	"github.com/citeguard/citeguard/internal/model"
	"github.com/citeguard/citeguard/internal/parse"
	"github.com/citeguard/citeguard/internal/score"
	"github.com/citeguard/citeguard/internal/task"
	"github.com/citeguard/citeguard/internal/verify"
)

type stubSearcher struct {
	records []model.EvidenceRecord
}

func (s *stubSearcher) Name() string { return "stub" }

func (s *stubSearcher) Search(ctx context.Context, query string, limit int) ([]model.EvidenceRecord, error) {
	return s.records, nil
}

func newTestService(records []model.EvidenceRecord) *Service {
	parser := parse.NewParser(nil, nil)
	gatherer := gather.New(&stubSearcher{records: records}, nil, gather.Options{})
	matcher := score.NewMatcher(nil, nil)
	checker := verify.NewChecker(parser, gatherer, matcher, false, nil)
	return New(detect.NewDetector(), checker, task.NewEngine(nil), Options{TaskTimeout: 5 * time.Second})
}

func TestService_DetectCitations(t *testing.T) {
	svc := newTestService(nil)
	spans := svc.DetectCitations("Early results (Kaplan et al., 2020) were promising.")
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Type != model.CitationTypeAuthorYear {
		t.Errorf("unexpected type %s", spans[0].Type)
	}
}

func TestService_StartAndPoll(t *testing.T) {
	records := []model.EvidenceRecord{{
		Title:      "Scaling Laws for Neural Language Models",
		URL:        "https://arxiv.org/abs/2001.08361",
		Content:    "Kaplan 2020 scaling laws",
		Confidence: 1.0,
	}}
	svc := newTestService(records)

	id, spans, err := svc.StartVerification("As shown in (Kaplan et al., 2020), loss follows a power law.")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	// The task is pollable immediately, before completion or after.
	if _, ok := svc.Poll(id); !ok {
		t.Fatal("expected task to be pollable right after start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	finished, err := svc.Wait(ctx, id, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if finished.Status != task.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", finished.Status, finished.Error)
	}

	batch, ok := finished.Result.(BatchResult)
	if !ok {
		t.Fatalf("unexpected result type %T", finished.Result)
	}
	if len(batch.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(batch.Results))
	}
	if batch.Results[0].Status != model.StatusVerified {
		t.Errorf("expected verified, got %s", batch.Results[0].Status)
	}
	if batch.Summary.Total != 1 || batch.Summary.Verified != 1 {
		t.Errorf("unexpected summary %+v", batch.Summary)
	}
}

func TestService_NoCitationsStillCompletes(t *testing.T) {
	svc := newTestService(nil)

	id, spans, err := svc.StartVerification("Nothing citable here at all.")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(spans) != 0 {
		t.Fatalf("expected no spans, got %d", len(spans))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	finished, err := svc.Wait(ctx, id, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	batch := finished.Result.(BatchResult)
	if batch.Summary.Total != 0 {
		t.Errorf("expected empty batch, got %+v", batch.Summary)
	}
}

func TestService_PollUnknown(t *testing.T) {
	svc := newTestService(nil)
	if _, ok := svc.Poll("does-not-exist"); ok {
		t.Error("expected unknown task to report not found")
	}
}

func TestService_VerifySpans(t *testing.T) {
	svc := newTestService(nil)
	spans := []model.CitationSpan{{Text: "(Smith et al., 2021)"}}

	id, err := svc.VerifySpans(spans)
	if err != nil {
		t.Fatalf("verify spans: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	finished, err := svc.Wait(ctx, id, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	batch := finished.Result.(BatchResult)
	if len(batch.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(batch.Results))
	}
}

func TestService_CompletionCallback(t *testing.T) {
	svc := newTestService(nil)
	done := make(chan task.Task, 1)

	_, _, err := svc.StartVerification("See (Jones et al., 2019) for background.", func(t task.Task) {
		done <- t
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case snapshot := <-done:
		if !snapshot.Status.Terminal() {
			t.Errorf("callback fired before terminal state: %s", snapshot.Status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("completion callback never fired")
	}
}

func TestSummarize(t *testing.T) {
	results := []model.FactCheckResult{
		{Status: model.StatusVerified},
		{Status: model.StatusVerified},
		{Status: model.StatusPartial},
		{Status: model.StatusNotFound},
		{Status: model.StatusError},
	}
	s := Summarize(results)
	if s.Total != 5 || s.Verified != 2 || s.Partial != 1 || s.NotFound != 1 || s.Errors != 1 {
		t.Errorf("unexpected summary %+v", s)
	}
}

func TestService_WaitUnknownTask(t *testing.T) {
	svc := newTestService(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := svc.Wait(ctx, "missing", 10*time.Millisecond); err == nil {
		t.Error("expected error for unknown task")
	}
}
