package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/hoard/internal/config"
	"github.com/tanq16/hoard/internal/utils"
)

var (
	configPath  string
	balancerURL string
	chunkSize   string
	parallel    int
	timeout     time.Duration
	userAgent   string
	proxyURL    string
	headers     []string
	debug       bool
	fileLog     bool
	cfg         config.Config
)

var HoardVersion = "dev"

var rootCmd = &cobra.Command{
	Use:               "hoard",
	Short:             "Hoard is a resumable multi-source archive downloader",
	Version:           HoardVersion,
	PersistentPreRunE: loadConfig,
	SilenceUsage:      true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVarP(&balancerURL, "balancer", "b", "", "Content balancer base URL")
	rootCmd.PersistentFlags().StringVar(&chunkSize, "chunk-size", "", "Chunk size (eg. 4MiB, 16MB)")
	rootCmd.PersistentFlags().IntVarP(&parallel, "parallel", "c", utils.DefaultParallelChunks, "Chunks fetched in parallel (above 8 enables high-thread-mode)")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", utils.DefaultRequestTimeout, "Per-request timeout (eg. 5s, 1m)")
	rootCmd.PersistentFlags().StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent")
	rootCmd.PersistentFlags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (user:pass@ allowed)")
	rootCmd.PersistentFlags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&fileLog, "log", false, "Write JSON logs to "+utils.LogFile+" instead of the terminal")

	rootCmd.AddCommand(newFetchCmd())
	rootCmd.AddCommand(newResolveCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newCleanCmd())
}

// loadConfig layers defaults, the config file, HOARD_* variables and flags.
func loadConfig(cmd *cobra.Command, args []string) error {
	utils.InitLogger(debug)
	if fileLog {
		f, err := os.OpenFile(utils.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("error opening log file: %w", err)
		}
		utils.SetLogOutput(f)
	}

	c := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			return err
		}
		c = loaded
	}
	if err := c.LoadFromEnv(); err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("balancer") {
		c.BalancerURL = balancerURL
	}
	if flags.Changed("chunk-size") {
		size, err := config.ParseSize(chunkSize)
		if err != nil {
			return fmt.Errorf("invalid chunk size: %w", err)
		}
		c.ChunkSize = size
	}
	if flags.Changed("parallel") {
		c.ParallelChunks = parallel
	}
	if flags.Changed("timeout") {
		c.HTTP.Timeout = timeout
	}
	if flags.Changed("user-agent") {
		c.HTTP.UserAgent = userAgent
	}
	if flags.Changed("proxy") {
		c.HTTP.Proxy = proxyURL
	}
	for k, v := range utils.ParseHeaderArgs(headers) {
		c.HTTP.Headers[k] = v
	}
	if err := c.Validate(); err != nil {
		return err
	}
	cfg = c
	log.Debug().Str("op", "cmd/root").Str("balancer", cfg.BalancerURL).Str("chunkSize", utils.FormatBytes(cfg.ChunkSize)).
		Int("parallel", cfg.ParallelChunks).Msg("Configuration loaded")
	return nil
}
