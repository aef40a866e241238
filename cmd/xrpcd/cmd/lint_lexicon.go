package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xrpc-run/xrpcd/internal/domain/lexicon"
)

var lintLexiconCmd = &cobra.Command{
	Use:   "lint-lexicon <dir>",
	Short: "Load and validate a lexicon directory without serving",
	Long: `Load every lexicon JSON document in <dir>, build the method registry, and
report how many query/procedure/subscription methods were loaded, or the first error
that would prevent xrpcd serve from booting against this directory.

This does not start a listener; it is a fast feedback loop for iterating
on lexicon documents.`,
	Args: cobra.ExactArgs(1),
	RunE: runLintLexicon,
}

func init() {
	rootCmd.AddCommand(lintLexiconCmd)
}

func runLintLexicon(cmd *cobra.Command, args []string) error {
	dir := args[0]

	reg, err := lexicon.LoadDir(os.DirFS(dir), ".")
	if err != nil {
		return err
	}

	fmt.Printf("loaded %d method(s) from %s\n", reg.Len(), dir)
	return nil
}
