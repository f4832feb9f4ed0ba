package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/citeguard/citeguard/internal/report"
	"github.com/citeguard/citeguard/internal/service"
	"github.com/citeguard/citeguard/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <list-file>",
	Short: "Fact-check multiple documents in parallel",
	Long: `Batch fact-checks multiple documents concurrently:
- Read document paths from the list file (one per line, # for comments)
- Check documents in parallel with a configurable worker count
- Write a JSON and Markdown report per document

Example:
  citeguard batch papers.txt
  citeguard batch papers.txt --concurrency 5 --output-dir ./reports
  citeguard batch papers.txt --searx https://searx.example.org`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 3, "number of concurrent workers")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./citeguard-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().StringVar(&searxURL, "searx", "", "SearXNG instance URL (empty disables web search)")
	batchCmd.Flags().BoolVar(&noQueries, "no-queries", false, "omit search queries from reports")

	// LLM flags
	batchCmd.Flags().BoolVar(&llmEnabled, "llm", false, "enable generative citation parsing")
	batchCmd.Flags().StringVar(&llmProvider, "llm-provider", "openai", "LLM provider (openai, anthropic, ollama)")
	batchCmd.Flags().StringVar(&llmModel, "llm-model", "gpt-4o-mini", "LLM model name")
}

func runBatch(cmd *cobra.Command, args []string) error {
	listFile := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	cfg := loadConfig()
	if searxURL != "" {
		cfg.Search.SearxURL = searxURL
	}
	if concurrency > 0 {
		cfg.Concurrency.BatchWorkers = concurrency
	}
	if llmEnabled {
		cfg.LLM.Provider = llmProvider
		cfg.LLM.Model = llmModel
		if err := resolveAPIKey(cfg); err != nil {
			return err
		}
	} else {
		cfg.LLM.Provider = ""
	}

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	svc, err := service.NewFromConfig(cfg, logger)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	checker := worker.NewBatchChecker(svc.Detector(), svc.Checker(), cfg.Concurrency.BatchWorkers)

	fmt.Fprintf(os.Stderr, "Checking documents from %s with %d workers...\n", listFile, cfg.Concurrency.BatchWorkers)

	results, err := checker.CheckListFile(ctx, listFile)
	if err != nil {
		return fmt.Errorf("batch check: %w", err)
	}

	renderer := report.NewRenderer(!noQueries)
	successCount := 0
	failureCount := 0

	for _, result := range results {
		if result.Error != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Path, result.Error)
			continue
		}

		rep := report.New(result.Path, result.Results)
		slug := report.Slug(result.Path)
		if err := renderer.RenderJSON(rep, filepath.Join(outputDir, slug+".json")); err != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: write JSON: %v\n", result.Path, err)
			continue
		}
		if err := renderer.RenderMarkdown(rep, filepath.Join(outputDir, slug+".md")); err != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: write Markdown: %v\n", result.Path, err)
			continue
		}

		successCount++
		s := rep.Summary
		fmt.Fprintf(os.Stderr, "✓ %s: %d citations, %d verified, %d not found\n",
			result.Path, s.Total, s.Verified, s.NotFound)
	}

	fmt.Fprintf(os.Stderr, "\nDone: %d checked, %d failed, reports in %s\n", successCount, failureCount, outputDir)
	return nil
}
