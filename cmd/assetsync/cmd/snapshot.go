package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quartzrender/assetsync"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Build and persist a manifest of a directory tree",
	Long: "Walk the root directory, hash every file and write a single manifest\n" +
		"file into the destination directory. Identical trees always produce\n" +
		"byte-identical manifests.",
	RunE: runSnapshot,
}

func init() {
	snapshotCmd.Flags().String("root", "", "root directory to snapshot")
	snapshotCmd.Flags().String("destination", "", "directory to write the manifest into")
	snapshotCmd.Flags().String("name", "", "label embedded in the manifest filename")
	snapshotCmd.MarkFlagRequired("root")
	snapshotCmd.MarkFlagRequired("destination")
	snapshotCmd.MarkFlagRequired("name")

	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	root, _ := cmd.Flags().GetString("root")
	destination, _ := cmd.Flags().GetString("destination")
	name, _ := cmd.Flags().GetString("name")

	handle, warnings, err := assetsync.Snapshot(cmd.Context(), root, destination, name, engineOptions()...)
	if err != nil {
		return err
	}

	if jsonMode(cmd) {
		return printJSON(map[string]any{
			"manifest":     handle.LocalPath,
			"manifestHash": handle.Hash,
			"name":         handle.Name,
			"createdTime":  handle.CreatedAt,
			"warning":      joinWarnings(warnings),
		})
	}

	printWarnings(warnings)
	fmt.Printf("Manifest written to %s\n", handle.LocalPath)
	fmt.Printf("Manifest hash: %s\n", handle.Hash)
	return nil
}
