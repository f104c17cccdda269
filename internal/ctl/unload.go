package ctl

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(unloadCmd)
}

var unloadCmd = &cobra.Command{
	Use:   "unload MODEL",
	Short: "Evict a warm adapter from the daemon's memory",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnload,
}

func runUnload(cmd *cobra.Command, args []string) error {
	modelID := args[0]
	if err := client().UnloadModel(cmd.Context(), modelID); err != nil {
		return err
	}
	fmt.Printf("Unloaded %s\n", modelID)
	return nil
}
