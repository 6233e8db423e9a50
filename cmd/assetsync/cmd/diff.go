package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quartzrender/assetsync"
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare a manifest against the live directory tree",
	Long: "Re-scan the root directory and report which files were added, modified\n" +
		"or removed relative to the manifest. Timestamps are never compared;\n" +
		"only size and content hash count.",
	RunE: runDiff,
}

func init() {
	diffCmd.Flags().String("root", "", "root directory to scan")
	diffCmd.Flags().String("manifest", "", "baseline manifest file")
	diffCmd.MarkFlagRequired("root")
	diffCmd.MarkFlagRequired("manifest")

	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	root, _ := cmd.Flags().GetString("root")
	manifestPath, _ := cmd.Flags().GetString("manifest")

	diff, warnings, err := assetsync.DiffAgainstRoot(cmd.Context(), manifestPath, root, engineOptions()...)
	if err != nil {
		return err
	}

	if jsonMode(cmd) {
		return printJSON(diff)
	}

	printWarnings(warnings)
	if diff.Empty() {
		fmt.Println("No changes.")
		return nil
	}
	for _, p := range diff.Added {
		fmt.Printf("A %s\n", p)
	}
	for _, p := range diff.Modified {
		fmt.Printf("M %s\n", p)
	}
	for _, p := range diff.Removed {
		fmt.Printf("D %s\n", p)
	}
	fmt.Printf("%d added, %d modified, %d removed\n", len(diff.Added), len(diff.Modified), len(diff.Removed))
	return nil
}
