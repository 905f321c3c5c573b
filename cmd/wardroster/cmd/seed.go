package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wardroster/wardroster/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Provision the law and hospital rule baseline",
	Long: `Seed inserts the built-in law and hospital hard rules into a project.
Templates whose document id already exists are skipped, so the command
is safe to re-run after adding departments.`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().String("project", "default", "project id")
	seedCmd.Flags().String("hospital", "default", "hospital id for facility-scoped rules")
}

func runSeed(cmd *cobra.Command, args []string) error {
	_, database, st, log, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()

	project, _ := cmd.Flags().GetString("project")
	hospital, _ := cmd.Flags().GetString("hospital")

	created, err := seed.Apply(context.Background(), st, project, hospital, log)
	if err != nil {
		return err
	}
	if len(created) == 0 {
		fmt.Println("rule baseline already present")
		return nil
	}
	for _, r := range created {
		fmt.Printf("%-12s %-10s %s\n", r.ScopeType, r.ScopeID, r.Title)
	}
	fmt.Printf("%d rules seeded\n", len(created))
	return nil
}
