package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wardroster/wardroster/internal/dsl"
)

var validateCmd = &cobra.Command{
	Use:   "validate <dsl-file>",
	Short: "Validate a rule DSL document",
	Long: `Validate compiles a DSL document and prints the validation result as
JSON. With --db-url set, shift codes and scope ids are checked against the
catalog; without it only structural validation runs.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	text, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	ctx := context.Background()
	var catalog dsl.Catalog
	if dbURL != "" {
		_, database, st, _, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()
		catalog = st
	}

	res := dsl.Compile(ctx, string(text), nil, catalog)
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if !res.OK {
		return fmt.Errorf("validation failed with %d issue(s)", len(res.Issues))
	}
	return nil
}
