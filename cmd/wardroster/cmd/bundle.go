package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wardroster/wardroster/internal/bundle"
	"github.com/wardroster/wardroster/internal/types"
)

var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Compose and activate rule bundles",
	RunE:  runBundle,
}

func init() {
	rootCmd.AddCommand(bundleCmd)
	bundleCmd.Flags().String("project", "default", "project id")
	bundleCmd.Flags().String("period", "", "scheduling period id (required)")
	bundleCmd.Flags().String("template", "", "template id for the TEMPLATE layer")
	bundleCmd.Flags().String("name", "", "bundle name")
	bundleCmd.Flags().String("clone-period", "", "prior period to clone nurse preferences from")
	bundleCmd.Flags().String("clone-mode", string(types.CloneAsIs),
		"nurse preference clone mode (CLONE_AS_IS, CLONE_LATEST_VERSION)")
	bundleCmd.Flags().Bool("activate", false, "activate the bundle on the period after composing")
	bundleCmd.MarkFlagRequired("period")
}

func runBundle(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	_, database, st, log, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()

	periodFlag, _ := cmd.Flags().GetString("period")
	project, _ := cmd.Flags().GetString("project")
	template, _ := cmd.Flags().GetString("template")
	name, _ := cmd.Flags().GetString("name")
	clonePeriod, _ := cmd.Flags().GetString("clone-period")
	cloneMode, _ := cmd.Flags().GetString("clone-mode")
	activate, _ := cmd.Flags().GetBool("activate")

	composer := bundle.New(st, log)
	b, items, err := composer.Compose(ctx, bundle.Input{
		ProjectID:     project,
		PeriodID:      types.PeriodID(periodFlag),
		TemplateID:    template,
		Name:          name,
		ClonePeriodID: types.PeriodID(clonePeriod),
		CloneMode:     types.NursePrefCloneMode(cloneMode),
	})
	if err != nil {
		return err
	}

	fmt.Printf("bundle %s composed: %d item(s), status %s\n", b.ID, len(items), b.ValidationStatus)
	fmt.Printf("sha256 %s\n", b.SHA256)

	if activate {
		if err := composer.Activate(ctx, types.PeriodID(periodFlag), b.ID, "", false); err != nil {
			return err
		}
		fmt.Printf("bundle %s activated on period %s\n", b.ID, periodFlag)
	}
	return nil
}
