package ctl

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(rmCmd)
}

var rmCmd = &cobra.Command{
	Use:   "rm MODEL",
	Short: "Remove a model's local artifacts",
	Args:  cobra.ExactArgs(1),
	RunE:  runRm,
}

func runRm(cmd *cobra.Command, args []string) error {
	modelID := args[0]
	if err := client().DeleteModel(cmd.Context(), modelID); err != nil {
		return err
	}
	fmt.Printf("Removed %s\n", modelID)
	return nil
}
