package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tanq16/hoard/internal/output"
	"github.com/tanq16/hoard/internal/utils"
)

func newCleanCmd() *cobra.Command {
	var outputPath string
	var tempDir string

	cmd := &cobra.Command{
		Use:   "clean [FILE_KEY] [--output OUTPUT_PATH]",
		Short: "Discard saved resume state and chunk files for a file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			fileKey := args[0]
			if outputPath == "" {
				outputPath = filepath.Base(fileKey)
			}
			dir := resolveTempDir(tempDir, outputPath)
			if err := cleanTransfer(dir, fileKey); err != nil {
				output.PrintError("Error cleaning up temporary files: " + err.Error())
				os.Exit(1)
			}
			output.PrintSuccess("Temporary files cleaned up")
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path the transfer was started with")
	cmd.Flags().StringVar(&tempDir, "temp", "", "Directory holding chunk and resume files")
	return cmd
}

func cleanTransfer(dir, fileKey string) error {
	files, _, err := utils.ChunkFilesOnDisk(dir, fileKey)
	if err != nil {
		return err
	}
	var errs []error
	for _, path := range files {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := os.Remove(utils.StateFileName(dir, fileKey)); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}
	if err := utils.CleanTempDir(dir); err != nil {
		errs = append(errs, fmt.Errorf("error removing temp dir: %w", err))
	}
	return errors.Join(errs...)
}
