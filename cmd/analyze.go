package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/retailmind-cli/internal/ai"
	"github.com/KaramelBytes/retailmind-cli/internal/analysis"
	"github.com/KaramelBytes/retailmind-cli/internal/classifier"
	"github.com/KaramelBytes/retailmind-cli/internal/dataset"
	"github.com/KaramelBytes/retailmind-cli/internal/utils"
)

// loadFlags are shared by every command that reads a data file.
type loadFlags struct {
	Sheet     string
	Delimiter string
	MaxRows   int
}

func (f *loadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Sheet, "sheet", "", "XLSX: sheet name (default first sheet)")
	cmd.Flags().StringVar(&f.Delimiter, "delimiter", "", "CSV delimiter: ',' | ';' | '|' | 'tab' (auto-detect if omitted)")
	cmd.Flags().IntVar(&f.MaxRows, "max-rows", 100000, "maximum rows to read (0 = unlimited)")
}

func (f *loadFlags) load(path string) (*dataset.Dataset, error) {
	delim, err := parseDelimiter(f.Delimiter)
	if err != nil {
		return nil, err
	}
	return dataset.LoadFile(path, dataset.LoadOptions{Delimiter: delim, Sheet: f.Sheet, MaxRows: f.MaxRows})
}

var (
	anaLoad           = &loadFlags{}
	anaOutputPath     string
	anaJSON           bool
	anaPreviewRows    int
	anaHeuristicsOnly bool
	anaOutlierThr     float64
)

// analyzeOutput is the --json document.
type analyzeOutput struct {
	Classification *classifier.Result `json:"classification"`
	Analysis       *analysis.Report   `json:"analysis"`
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Classify columns of a CSV/TSV/XLSX and summarize sales, products and customers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := anaLoad.load(args[0])
		if err != nil {
			return err
		}
		c := orEmpty(cfg)
		var emb ai.Embedder
		if !anaHeuristicsOnly {
			e, err := buildEmbedder(c)
			if err != nil {
				return err
			}
			emb = e
		}
		opt := analysisOptions(c, anaPreviewRows)
		if anaOutlierThr > 0 {
			opt.OutlierThreshold = anaOutlierThr
		}
		out := runAnalysis(cmd.Context(), ds, buildClassifier(c, emb, logger), opt)

		var body []byte
		if anaJSON {
			if body, err = utils.PrettyJSON(out); err != nil {
				return err
			}
		} else {
			body = []byte(out.Analysis.Markdown())
		}
		return emit(cmd.OutOrStdout(), body, anaOutputPath, "analysis")
	},
}

func runAnalysis(ctx context.Context, ds *dataset.Dataset, cls *classifier.Classifier, opt analysis.Options) analyzeOutput {
	if ctx == nil {
		ctx = context.Background()
	}
	roles := cls.Classify(ctx, ds.Columns)
	return analyzeOutput{Classification: roles, Analysis: analysis.Analyze(ds, roles, opt)}
}

// emit prints body, or writes it atomically to path when one is given.
func emit(w io.Writer, body []byte, path, what string) error {
	if path == "" {
		_, err := fmt.Fprintln(w, string(body))
		return err
	}
	if err := utils.SafeWriteFile(path, body); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Fprintf(w, "✓ Wrote %s to %s\n", what, path)
	return nil
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	anaLoad.register(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&anaOutputPath, "output", "o", "", "optional path to write the analysis")
	analyzeCmd.Flags().BoolVar(&anaJSON, "json", false, "print classification and analysis as JSON")
	analyzeCmd.Flags().IntVar(&anaPreviewRows, "preview-rows", 0, "rows kept in the data preview (overrides config)")
	analyzeCmd.Flags().BoolVar(&anaHeuristicsOnly, "heuristics-only", false, "skip embedding votes during classification")
	analyzeCmd.Flags().Float64Var(&anaOutlierThr, "outlier-threshold", 3.5, "robust |z| threshold for outliers (MAD-based)")
}
