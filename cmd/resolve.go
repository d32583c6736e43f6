package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/hoard/internal/output"
	"github.com/tanq16/hoard/internal/resolver"
	"github.com/tanq16/hoard/internal/scheduler"
	"github.com/tanq16/hoard/internal/utils"
)

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [FILE_KEY]",
		Short: "Ask the balancer about a file and show the transfer mode it would use",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			opts := cfg.EngineOptions()
			b := resolver.NewBalancer(resolver.Options{
				BaseURL:  opts.BalancerURL,
				Token:    opts.BalancerToken,
				Timeout:  opts.ResolveTimeout,
				RetryMax: opts.ResolveRetries,
				HTTP:     opts.HTTP,
			})
			res, err := b.Resolve(context.Background(), args[0])
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			info := res.FileInfo
			output.PrintHeader(args[0])
			output.PrintField("size", utils.FormatBytes(info.Size))
			output.PrintField("sha256", info.ExpectedHash)
			output.PrintField("providers", fmt.Sprint(info.ProviderCount))
			output.PrintField("mode", string(scheduler.SelectMode(info.ProviderCount, cfg.LowProviderThreshold)))
			output.PrintField("server", res.ProviderID)
			output.PrintField("url", res.DownloadURL)
		},
	}
}
