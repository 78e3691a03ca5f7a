package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/retailmind-cli/internal/classifier"
	"github.com/KaramelBytes/retailmind-cli/internal/utils"
)

var rolesJSON bool

var rolesCmd = &cobra.Command{
	Use:   "roles [role]",
	Short: "List the column roles the classifier can assign",
	Example: `  retailmind roles
  retailmind roles revenue
  retailmind roles --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := classifier.DefaultCatalog()
		protos := cat.Prototypes
		if len(args) == 1 {
			r, ok := cat.ParseRole(args[0])
			if !ok {
				return fmt.Errorf("unknown role: %s", args[0])
			}
			p, _ := cat.Prototype(r)
			protos = []classifier.Prototype{p}
		}
		w := cmd.OutOrStdout()
		if rolesJSON {
			b, err := utils.PrettyJSON(protos)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, string(b))
			return nil
		}
		fmt.Fprintf(w, "Catalog version %s\n", cat.Version)
		for _, p := range protos {
			fmt.Fprintf(w, "- %s: %s\n", p.Role, p.Description)
			fmt.Fprintf(w, "  keywords: %s\n", strings.Join(p.Keywords, ", "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rolesCmd)
	rolesCmd.Flags().BoolVar(&rolesJSON, "json", false, "print roles as JSON")
}
