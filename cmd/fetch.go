package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/hoard/internal/engine"
	"github.com/tanq16/hoard/internal/output"
)

func newFetchCmd() *cobra.Command {
	var outputPath string
	var tempDir string
	var originBase string

	cmd := &cobra.Command{
		Use:   "fetch [FILE_KEY] [--output OUTPUT_PATH] [--origin URL]",
		Short: "Download an archive from the provider network, resuming earlier progress",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			fileKey := args[0]
			if outputPath == "" {
				outputPath = filepath.Base(fileKey)
			}
			if originBase == "" {
				originBase = cfg.OriginBase
			}
			req := engine.Request{
				FileKey:    fileKey,
				OutputPath: outputPath,
				TempDir:    resolveTempDir(tempDir, outputPath),
				OriginBase: originBase,
			}

			eng := engine.New(cfg.EngineOptions())
			mgr := output.NewManager(fileKey)
			stop := watchSignals(eng, mgr, fileKey)
			defer stop()

			mgr.StartDisplay()
			res, err := eng.Download(context.Background(), req, mgr.Update)
			if err != nil {
				mgr.ReportError(err)
			} else {
				mgr.Complete(res)
			}
			mgr.StopDisplay()
			mgr.ShowSummary(res)
			if err != nil {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (defaults to the file key's base name)")
	cmd.Flags().StringVar(&tempDir, "temp", "", "Directory for chunk and resume files (defaults to "+tempDirHint+")")
	cmd.Flags().StringVar(&originBase, "origin", "", "Direct origin base URL (http(s):// or s3://bucket/prefix)")
	return cmd
}

// watchSignals maps Ctrl+C/SIGTERM to a stop and, where the platform has
// them, the pause/resume signals to the engine controls.
func watchSignals(eng *engine.Engine, mgr *output.Manager, fileKey string) func() {
	signals := []os.Signal{os.Interrupt, syscall.SIGTERM}
	if pauseSignal != nil {
		signals = append(signals, pauseSignal, resumeSignal)
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-ch:
				switch sig {
				case pauseSignal:
					eng.Pause()
					mgr.SetStatus(output.StatusPaused, fmt.Sprintf("Paused %s", fileKey))
				case resumeSignal:
					eng.Resume()
					mgr.SetStatus(output.StatusActive, fmt.Sprintf("Fetching %s", fileKey))
				default:
					log.Info().Str("op", "cmd/fetch").Str("signal", sig.String()).Msg("Stopping transfer")
					eng.Cancel()
				}
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
