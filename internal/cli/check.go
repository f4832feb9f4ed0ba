package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/citeguard/citeguard/internal/report"
	"github.com/citeguard/citeguard/internal/service"
)

var (
	outJSON      string
	outMD        string
	checkTimeout time.Duration
	searxURL     string
	noQueries    bool
	llmEnabled   bool
	llmProvider  string
	llmModel     string
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Detect and fact-check the citations in a document",
	Long: `Check runs the full pipeline on one document:
- Detect citation-like spans in the text
- Structure each citation into searchable fields
- Resolve DOIs, arXiv IDs and PMIDs against their registries
- Search for corroborating sources
- Classify each citation as verified, partial or not found

Pass "-" to read from stdin.

Example:
  citeguard check paper.txt
  citeguard check paper.txt --searx https://searx.example.org --json report.json
  citeguard check paper.txt --llm --llm-provider openai --llm-model gpt-4o-mini`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	// Output flags
	checkCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path (\"-\" for stdout)")
	checkCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (\"-\" for stdout)")
	checkCmd.Flags().BoolVar(&noQueries, "no-queries", false, "omit search queries from reports")

	// Pipeline flags
	checkCmd.Flags().DurationVar(&checkTimeout, "timeout", 2*time.Minute, "verification timeout for the whole document")
	checkCmd.Flags().StringVar(&searxURL, "searx", "", "SearXNG instance URL (empty disables web search)")

	// LLM flags
	checkCmd.Flags().BoolVar(&llmEnabled, "llm", false, "enable generative citation parsing")
	checkCmd.Flags().StringVar(&llmProvider, "llm-provider", "openai", "LLM provider (openai, anthropic, ollama)")
	checkCmd.Flags().StringVar(&llmModel, "llm-model", "gpt-4o-mini", "LLM model name")
}

func runCheck(cmd *cobra.Command, args []string) error {
	document := args[0]
	text, err := readDocument(document)
	if err != nil {
		return err
	}

	cfg := loadConfig()
	if searxURL != "" {
		cfg.Search.SearxURL = searxURL
	}
	cfg.Verify.TaskTimeout = checkTimeout
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

	id, spans, err := svc.StartVerification(text)
	if err != nil {
		return fmt.Errorf("start verification: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Detected %d citations, verifying...\n", len(spans))

	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout+10*time.Second)
	defer cancel()

	t, err := svc.Wait(ctx, id, 200*time.Millisecond)
	if err != nil {
		return fmt.Errorf("wait for verification: %w", err)
	}
	if t.Error != "" {
		return fmt.Errorf("verification failed: %s", t.Error)
	}

	batch, ok := t.Result.(service.BatchResult)
	if !ok {
		return fmt.Errorf("unexpected task result type %T", t.Result)
	}

	rep := report.New(document, batch.Results)
	renderer := report.NewRenderer(!noQueries)

	if outJSON != "" {
		if err := renderer.RenderJSON(rep, outJSON); err != nil {
			return err
		}
	}
	if outMD != "" {
		if err := renderer.RenderMarkdown(rep, outMD); err != nil {
			return err
		}
	}
	if outJSON == "" && outMD == "" {
		if err := renderer.RenderMarkdown(rep, "-"); err != nil {
			return err
		}
	}

	s := batch.Summary
	fmt.Fprintf(os.Stderr, "✓ %d verified, %d partial, %d not found", s.Verified, s.Partial, s.NotFound)
	if s.Errors > 0 {
		fmt.Fprintf(os.Stderr, ", %d errors", s.Errors)
	}
	fmt.Fprintln(os.Stderr)
	return nil
}
