package ctl

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	listTask   string
	listStatus string
)

func init() {
	listCmd.Flags().StringVar(&listTask, "task", "", "filter by task (stt|tts)")
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (available|not_downloaded)")
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List models known to the daemon",
	RunE:    runList,
}

func runList(cmd *cobra.Command, args []string) error {
	models, err := client().ListModels(cmd.Context(), listStatus, listTask)
	if err != nil {
		return err
	}
	if len(models) == 0 {
		fmt.Println("No models. Run 'vocalctl pull <model>' to download one.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTASK\tBACKEND\tSIZE\tSTATUS")
	for _, m := range models {
		size := m.SizeReadable
		if size == "" {
			size = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.ID, m.Task, m.Backend, size, m.Status)
	}
	return w.Flush()
}
