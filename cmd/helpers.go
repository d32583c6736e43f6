package cmd

import "github.com/tanq16/hoard/internal/utils"

const tempDirHint = utils.DefaultTempDirName + " beside the output"

func resolveTempDir(flagValue, outputPath string) string {
	if flagValue != "" {
		return flagValue
	}
	if cfg.TempDir != "" {
		return cfg.TempDir
	}
	return utils.DefaultTempDir(outputPath)
}
