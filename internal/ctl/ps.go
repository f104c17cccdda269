package ctl

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(psCmd)
}

var psCmd = &cobra.Command{
	Use:     "ps",
	Aliases: []string{"status"},
	Short:   "Show loaded adapters and daemon status",
	RunE:    runPs,
}

func runPs(cmd *cobra.Command, args []string) error {
	st, err := client().Status(cmd.Context())
	if err != nil {
		return err
	}

	precision := st.Device.Precision
	if st.Device.Accelerator {
		fmt.Printf("device: accelerator (%d MB), precision %s\n", st.Device.AcceleratorMemMB, precision)
	} else {
		fmt.Printf("device: cpu (%d threads), precision %s\n", st.Device.Threads, precision)
	}
	fmt.Printf("keep-alive: %ds  loads: %d  evictions: %d  uptime: %ds\n\n",
		st.KeepAliveSeconds, st.LoadsTotal, st.EvictionsTotal, st.UptimeSeconds)

	if len(st.Adapters) == 0 {
		fmt.Println("No adapters loaded.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tBACKEND\tSTATE\tINFLIGHT\tLAST USED")
	for _, a := range st.Adapters {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			a.ModelID, a.Backend, a.State, a.Inflight,
			time.Unix(a.LastUsed, 0).Format("15:04:05"))
	}
	return w.Flush()
}
