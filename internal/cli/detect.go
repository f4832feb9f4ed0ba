package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/citeguard/citeguard/internal/detect"
)

var detectJSON bool

// detectCmd represents the detect command
var detectCmd = &cobra.Command{
	Use:   "detect <file>",
	Short: "Detect citations in a document without verifying them",
	Long: `Detect scans a text document for citation-like spans: author-year
references, DOIs, arXiv identifiers, journal and book references,
academic URLs. No network access is performed.

Pass "-" to read from stdin.

Example:
  citeguard detect paper.txt
  cat paper.txt | citeguard detect - --json`,
	Args: cobra.ExactArgs(1),
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)
	detectCmd.Flags().BoolVar(&detectJSON, "json", false, "emit spans as JSON")
}

func runDetect(cmd *cobra.Command, args []string) error {
	text, err := readDocument(args[0])
	if err != nil {
		return err
	}

	spans := detect.NewDetector().Detect(text)

	if detectJSON {
		data, err := json.MarshalIndent(spans, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal spans: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	if len(spans) == 0 {
		fmt.Println("No citations detected.")
		return nil
	}
	for i, span := range spans {
		fmt.Printf("%d. [%d:%d] %s (%.2f) %s\n", i+1, span.Start, span.End, span.Type, span.Confidence, span.Text)
	}
	return nil
}

// readDocument reads a file, or stdin when path is "-".
func readDocument(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return string(data), nil
}
