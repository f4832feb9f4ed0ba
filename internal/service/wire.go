package service

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/citeguard/citeguard/internal/cache"
	"github.com/citeguard/citeguard/internal/detect"
	"github.com/citeguard/citeguard/internal/gather"
	"github.com/citeguard/citeguard/internal/llm"
	"github.com/citeguard/citeguard/internal/model"
	"github.com/citeguard/citeguard/internal/parse"
	"github.com/citeguard/citeguard/internal/score"
	"github.com/citeguard/citeguard/internal/search"
	"github.com/citeguard/citeguard/internal/task"
	"github.com/citeguard/citeguard/internal/verify"
)

// NewFromConfig assembles the full pipeline from configuration:
// detector, parser, search and registry backends, matcher, checker and
// task engine.
func NewFromConfig(cfg *model.Config, logger *zap.Logger) (*Service, error) {
	if cfg == nil {
		cfg = model.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	generator, err := llm.NewGenerator(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		return nil, fmt.Errorf("configure LLM provider: %w", err)
	}

	var searcher search.Searcher
	if cfg.Search.SearxURL != "" {
		searx, err := search.NewSearxClient(cfg.Search.SearxURL, search.SearxOptions{
			UserAgent:         cfg.Search.UserAgent,
			Timeout:           cfg.Search.Timeout,
			RequestsPerSecond: cfg.Search.RequestsPerSecond,
			Burst:             cfg.Search.Burst,
			Logger:            logger,
		})
		if err != nil {
			return nil, fmt.Errorf("configure search: %w", err)
		}
		searcher = searx
		if cfg.Search.CacheTTL > 0 {
			store := cache.NewMemoryCache(cfg.Search.CacheTTL, cfg.Search.CacheTTL)
			searcher = search.NewCachedSearcher(searx, store, cfg.Search.CacheTTL, logger)
		}
	}

	resolver := search.NewRegistryResolver(search.RegistryOptions{
		UserAgent:         cfg.Search.UserAgent,
		Timeout:           cfg.Search.Timeout,
		RequestsPerSecond: cfg.Search.RequestsPerSecond,
		Burst:             cfg.Search.Burst,
		Logger:            logger,
	})

	parser := parse.NewParser(generator, logger)
	gatherer := gather.New(searcher, resolver, gather.Options{
		MaxQueries:      cfg.Verify.MaxQueries,
		ResultsPerQuery: cfg.Verify.ResultsPerQuery,
		Logger:          logger,
	})
	matcher := score.NewMatcher(generator, logger)
	checker := verify.NewChecker(parser, gatherer, matcher, generator != nil, logger)

	detector := detect.NewDetector()
	engine := task.NewEngine(logger)

	return &Service{
		detector:    detector,
		checker:     checker,
		engine:      engine,
		taskTimeout: cfg.Verify.TaskTimeout,
		logger:      logger,
	}, nil
}

// Checker exposes the verification pipeline for callers that manage
// their own concurrency, such as the batch file checker.
func (s *Service) Checker() *verify.Checker { return s.checker }

// Detector exposes the citation detector.
func (s *Service) Detector() *detect.Detector { return s.detector }
