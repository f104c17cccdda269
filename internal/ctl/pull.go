package ctl

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"vocald/pkg/types"
)

func init() {
	rootCmd.AddCommand(pullCmd)
}

var pullCmd = &cobra.Command{
	Use:   "pull MODEL",
	Short: "Download a model through the daemon",
	Long:  `Pull starts (or attaches to) the download of MODEL and follows its progress until the transfer finishes.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runPull,
}

func runPull(cmd *cobra.Command, args []string) error {
	modelID := args[0]
	c := client()
	ctx := cmd.Context()

	snap, err := c.StartDownload(ctx, modelID)
	if err != nil {
		return err
	}
	fmt.Printf("Pulling %s...\n", modelID)

	for {
		printProgress(snap)
		if snap.Status != types.StatusDownloading {
			break
		}
		select {
		case <-ctx.Done():
			fmt.Println()
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
		cur, ok, err := c.DownloadStatus(ctx, modelID)
		if err != nil {
			fmt.Println()
			return err
		}
		if !ok {
			// The daemon already discarded the terminal task; confirm via
			// the catalog.
			m, err := c.GetModel(ctx, modelID)
			if err != nil {
				fmt.Println()
				return err
			}
			if m.Status == types.StatusAvailable {
				snap.Status = types.StatusCompleted
				snap.Progress = 1
				continue
			}
			fmt.Println()
			return fmt.Errorf("download task for %s vanished (model is %s)", modelID, m.Status)
		}
		snap = cur
	}
	fmt.Println()

	if snap.Status == types.StatusError {
		return fmt.Errorf("download failed: %s", snap.Message)
	}
	fmt.Println("Done!")
	return nil
}

func printProgress(p types.DownloadProgress) {
	if p.TotalBytes > 0 {
		fmt.Printf("\r%s / %s %3.0f%%   ",
			humanize.IBytes(uint64(p.DownloadedBytes)),
			humanize.IBytes(uint64(p.TotalBytes)),
			p.Progress*100)
		return
	}
	fmt.Printf("\r%s downloaded   ", humanize.IBytes(uint64(p.DownloadedBytes)))
}
