package verify

import (
	"context"

	"go.uber.org/zap"

	"github.com/citeguard/citeguard/internal/gather"
	"github.com/citeguard/citeguard/internal/model"
	"github.com/citeguard/citeguard/internal/parse"
	"github.com/citeguard/citeguard/internal/score"
)

// Checker runs the full verification pipeline for citation spans:
// structure the citation, gather evidence, score and classify.
type Checker struct {
	parser   *parse.Parser
	gatherer *gather.Gatherer
	matcher  *score.Matcher
	useLLM   bool
	logger   *zap.Logger
}

// NewChecker wires a checker from its stages. useLLM enables generative
// citation parsing when a provider is configured.
func NewChecker(parser *parse.Parser, gatherer *gather.Gatherer, matcher *score.Matcher, useLLM bool, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		parser:   parser,
		gatherer: gatherer,
		matcher:  matcher,
		useLLM:   useLLM,
		logger:   logger,
	}
}

// VerifyOne fact-checks a single citation span. It never returns an
// error: pipeline failures become a result with status error so that a
// batch is never lost to one bad citation.
func (c *Checker) VerifyOne(ctx context.Context, span model.CitationSpan) (result model.FactCheckResult) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("verification panicked",
				zap.String("citation", span.Text), zap.Any("panic", r))
			result = model.FactCheckResult{
				Citation:    span,
				Status:      model.StatusError,
				Confidence:  0,
				Explanation: "Verification failed due to an internal error.",
			}
		}
	}()

	structured := c.parser.Parse(ctx, span.Text, c.useLLM)

	gathered, err := c.gatherer.Gather(ctx, structured)
	if err != nil {
		c.logger.Warn("evidence gathering failed",
			zap.String("citation", span.Text), zap.Error(err))
		return model.FactCheckResult{
			Citation:          span,
			Status:            model.StatusError,
			Confidence:        0,
			Explanation:       "Could not gather evidence: " + err.Error(),
			SearchQueriesUsed: gathered.Queries,
		}
	}

	verdict := c.matcher.Classify(ctx, structured, gathered.Records)

	c.logger.Debug("citation verified",
		zap.String("citation", span.Text),
		zap.String("status", string(verdict.Status)),
		zap.Float64("confidence", verdict.Confidence),
		zap.Int("sources", len(gathered.Records)))

	return model.FactCheckResult{
		Citation:          span,
		Status:            verdict.Status,
		Confidence:        model.Clamp01(verdict.Confidence),
		SourcesFound:      gathered.Records,
		Explanation:       verdict.Explanation,
		SearchQueriesUsed: gathered.Queries,
	}
}

// VerifyBatch fact-checks spans in order and reports fractional progress
// after each. The returned slice always has len(spans) entries, position
// i corresponding to spans[i]. onProgress may be nil.
func (c *Checker) VerifyBatch(ctx context.Context, spans []model.CitationSpan, onProgress func(fraction float64, latest model.FactCheckResult)) []model.FactCheckResult {
	results := make([]model.FactCheckResult, len(spans))
	for i, span := range spans {
		results[i] = c.VerifyOne(ctx, span)
		if onProgress != nil {
			onProgress(float64(i+1)/float64(len(spans)), results[i])
		}
	}
	return results
}
