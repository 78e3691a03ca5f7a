package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/retailmind-cli/internal/ai"
	"github.com/KaramelBytes/retailmind-cli/internal/rag"
	"github.com/KaramelBytes/retailmind-cli/internal/retrieval"
	"github.com/KaramelBytes/retailmind-cli/internal/utils"
)

var (
	askLoad       = &loadFlags{}
	askProvider   string
	askModel      string
	askTopK       int
	askStream     bool
	askJSON       bool
	askShowChunks bool
	askQuiet      bool
)

// askOutput is the --json document.
type askOutput struct {
	DatasetID    string          `json:"dataset_id"`
	Model        string          `json:"model"`
	Index        rag.IndexReport `json:"index"`
	PromptTokens int             `json:"prompt_tokens"`
	CostUSD      float64         `json:"estimated_cost_usd,omitempty"`
	rag.QueryResponse
}

var askCmd = &cobra.Command{
	Use:   "ask <file> <question>",
	Short: "Index a retail file and answer a question about it",
	Example: `  retailmind ask orders.csv "Which product sold best in March?"
  retailmind ask sales.xlsx "Who are the top customers?" --sheet 2024 --stream
  retailmind ask orders.csv "Average order value?" --provider ollama --model llama3.1:8b-instruct`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := askLoad.load(args[0])
		if err != nil {
			return err
		}
		c := orEmpty(cfg)
		svc, err := buildService(c, serviceOptions{Provider: askProvider, Model: askModel, TopK: askTopK}, logger)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		errw := cmd.ErrOrStderr()

		id := filepath.Base(args[0])
		ing, err := svc.Ingest(cmd.Context(), id, ds)
		if err != nil {
			return err
		}
		if !askQuiet && !askJSON {
			fmt.Fprintf(errw, "✓ Indexed %s: %d chunks (%d embedded)\n", id, ing.Index.Chunks, ing.Index.Embedded)
			if ing.Index.Embedded == 0 {
				fmt.Fprintln(errw, "⚠ No embeddings stored; set embedding_provider and credentials to enable retrieval.")
			}
		}

		req := rag.QueryRequest{DatasetID: id, Query: args[1], TopK: askTopK}
		var resp rag.QueryResponse
		streamed := askStream && !askJSON
		if streamed {
			if !askQuiet {
				fmt.Fprintln(errw, "(streaming)")
			}
			resp = svc.AskStream(cmd.Context(), req, func(delta string) { fmt.Fprint(w, delta) })
			fmt.Fprintln(w)
		} else {
			resp = svc.Ask(cmd.Context(), req)
		}
		if !resp.Success {
			return fmt.Errorf("ask: %w", resp.Err)
		}

		model := selectModel(c, askModel)
		if askJSON {
			out := askOutput{DatasetID: id, Model: model, Index: ing.Index, QueryResponse: resp}
			out.PromptTokens, out.CostUSD = estimateCost(model, args[1], resp)
			b, err := utils.PrettyJSON(out)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, string(b))
			return nil
		}
		if !streamed {
			if !askQuiet {
				fmt.Fprintln(w, "\n=== Answer ===")
			}
			fmt.Fprintln(w, resp.Answer)
		}
		if askShowChunks {
			printChunks(w, resp.RetrievedChunks)
		}
		return nil
	},
}

// estimateCost approximates prompt tokens from the retrieved context and the
// question; the cost is zero for models without pricing.
func estimateCost(model, question string, resp rag.QueryResponse) (int, float64) {
	prompt := utils.CountTokens(rag.DefaultSystemPrompt) +
		utils.CountTokens(retrieval.Context(resp.RetrievedChunks)) +
		utils.CountTokens(question)
	cost, _ := ai.EstimateCostUSD(model, prompt, utils.CountTokens(resp.Answer))
	return prompt, cost
}

func printChunks(w io.Writer, chunks []retrieval.Scored) {
	fmt.Fprintln(w, "\n=== Retrieved context ===")
	for i, sc := range chunks {
		first := sc.Chunk.Content
		if j := strings.IndexByte(first, '\n'); j >= 0 {
			first = first[:j]
		}
		fmt.Fprintf(w, "%d) [%s] %.3f %s\n", i+1, sc.Chunk.SourceLabel, sc.Score, utils.TruncateToTokenLimit(first, 30))
	}
}

func init() {
	rootCmd.AddCommand(askCmd)
	askLoad.register(askCmd)
	askCmd.Flags().StringVar(&askProvider, "provider", "", "answer provider: openrouter | ollama (overrides config)")
	askCmd.Flags().StringVar(&askModel, "model", "", "answer model (overrides config)")
	askCmd.Flags().IntVar(&askTopK, "top-k", 0, "chunks retrieved per question (overrides config)")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "stream the answer as it is generated")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the full response as JSON")
	askCmd.Flags().BoolVar(&askShowChunks, "show-chunks", false, "list the retrieved chunks after the answer")
	askCmd.Flags().BoolVar(&askQuiet, "quiet", false, "print only the answer")
}
