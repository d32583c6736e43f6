package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/hoard/internal/output"
	"github.com/tanq16/hoard/internal/plan"
	"github.com/tanq16/hoard/internal/utils"
)

func newStatusCmd() *cobra.Command {
	var outputPath string
	var tempDir string

	cmd := &cobra.Command{
		Use:   "status [FILE_KEY] [--output OUTPUT_PATH]",
		Short: "Show saved resume progress for a file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			fileKey := args[0]
			if outputPath == "" {
				outputPath = filepath.Base(fileKey)
			}
			dir := resolveTempDir(tempDir, outputPath)
			st, err := plan.Inspect(dir, fileKey)
			if errors.Is(err, os.ErrNotExist) {
				output.PrintInfo(fmt.Sprintf("No resume state for %s in %s", fileKey, dir))
				return
			}
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			chunks := plan.Layout(utils.TransferJob{FileKey: fileKey, TotalSize: st.TotalSize, TempDir: dir}, cfg.ChunkSize)
			_, onDisk, err := utils.ChunkFilesOnDisk(dir, fileKey)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			output.PrintHeader(fileKey)
			output.PrintField("state", utils.StateFileName(dir, fileKey))
			output.PrintField("size", utils.FormatBytes(st.TotalSize))
			output.PrintField("sha256", st.ExpectedHash)
			output.PrintField("completed", fmt.Sprintf("%d/%d chunks (at %s)", len(st.Completed), len(chunks), utils.FormatBytes(cfg.ChunkSize)))
			output.PrintField("chunk files", fmt.Sprint(len(onDisk)))
			output.PrintField("updated", time.UnixMilli(st.Timestamp).Format(time.DateTime))
			if len(onDisk) < len(st.Completed) {
				output.PrintWarning("  some completed chunks are missing on disk and will be fetched again")
			}
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path the transfer was started with")
	cmd.Flags().StringVar(&tempDir, "temp", "", "Directory holding chunk and resume files")
	return cmd
}
