package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/retailmind-cli/internal/ai"
	"github.com/KaramelBytes/retailmind-cli/internal/utils"
)

var modelsJSON bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Show known models, context windows and pricing used for trimming and cost hints",
	RunE: func(cmd *cobra.Command, args []string) error {
		ms := ai.Models()
		w := cmd.OutOrStdout()
		if modelsJSON {
			b, err := utils.PrettyJSON(ms)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, string(b))
			return nil
		}
		for _, m := range ms {
			price := "free/local"
			if !m.Free() {
				price = fmt.Sprintf("$%.5f in / $%.5f out per 1K", m.InputPerK, m.OutputPerK)
			}
			fmt.Fprintf(w, "%-38s %-10s %9d tokens  %s\n", m.Name, m.Provider, m.ContextTokens, price)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.Flags().BoolVar(&modelsJSON, "json", false, "print the catalog as JSON")
}
