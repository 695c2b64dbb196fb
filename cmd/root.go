package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vharsh/s3par/internal/s3client"
	"github.com/vharsh/s3par/internal/transfer"
	"github.com/vharsh/s3par/internal/utils"
)

var (
	workers    int
	splitMB    int
	maxRetries int
	force      bool
	clean      bool
	insecure   bool
	public     bool
	noProgress bool
	debug      bool
	quiet      bool
	region     string
	profile    string
)

var S3parVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "s3par s3://BUCKET/KEY [DEST]",
	Short:   "s3par downloads a single S3 object in parallel ranged parts",
	Version: S3parVersion,
	Long: `s3par splits a large S3 object into byte ranges and downloads them
concurrently into a pre-allocated local file.

Examples:
  s3par s3://my-bucket/image.iso ./image.iso -w 8
  s3par s3://public-bucket/data.tar.gz --public
  s3par s3://my-bucket/big.bin /mnt/data/ --clean`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		utils.InitLogger(debug, quiet)
		applyConfigDefaults(cmd)

		src := args[0]
		dest := ""
		if len(args) > 1 {
			dest = args[1]
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := s3client.New(ctx, s3client.Config{
			Profile:   profile,
			Region:    region,
			Anonymous: public,
			Insecure:  insecure,
		})
		if err != nil {
			utils.PrintError(fmt.Sprintf("Error setting up S3 client: %v", err))
			os.Exit(1)
		}

		coordinator := transfer.New(store, transfer.Options{
			Workers:    workers,
			PartSize:   int64(splitMB) * 1024 * 1024,
			MaxRetries: maxRetries,
			Force:      force,
			Clean:      clean,
			Progress:   !noProgress && !quiet && utils.IsTerminal(),
		})
		result := coordinator.Download(ctx, src, dest)
		switch result.Status {
		case transfer.StatusCompleted:
			if !quiet {
				utils.PrintSuccess(fmt.Sprintf("%s Finished in %.2fs (avg %s)",
					utils.StyleSymbols["pass"], result.Elapsed.Seconds(),
					utils.FormatSpeed(result.Bytes, result.Elapsed.Seconds())))
			}
		case transfer.StatusAborted:
			utils.PrintWarning("Download aborted")
			if result.PartialPath != "" {
				utils.PrintWarning(fmt.Sprintf("Partial file kept at %s", result.PartialPath))
			}
			os.Exit(1)
		case transfer.StatusFailed:
			utils.PrintError(fmt.Sprintf("%s Download failed: %v", utils.StyleSymbols["fail"], result.Err))
			if result.PartialPath != "" {
				utils.PrintWarning(fmt.Sprintf("Partial file kept at %s", result.PartialPath))
			}
			os.Exit(1)
		}
	},
}

// applyConfigDefaults overrides built-in flag defaults with values from
// the optional config file, without clobbering flags set on the command
// line.
func applyConfigDefaults(cmd *cobra.Command) {
	defaults, err := utils.LoadDefaults(utils.DefaultConfigPath())
	if err != nil {
		utils.PrintWarning(fmt.Sprintf("Ignoring unreadable config file: %v", err))
		return
	}
	if defaults.Workers > 0 && !cmd.Flags().Changed("workers") {
		workers = defaults.Workers
	}
	if defaults.SplitMB > 0 && !cmd.Flags().Changed("split") {
		splitMB = defaults.SplitMB
	}
	if defaults.MaxRetries > 0 && !cmd.Flags().Changed("max-tries") {
		maxRetries = defaults.MaxRetries
	}
	if defaults.Region != "" && !cmd.Flags().Changed("region") {
		region = defaults.Region
	}
	if defaults.Profile != "" && !cmd.Flags().Changed("profile") {
		profile = defaults.Profile
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().IntVarP(&workers, "workers", "w", 4, "Number of parallel part workers")
	rootCmd.Flags().IntVarP(&splitMB, "split", "s", 64, "Part size in MB")
	rootCmd.Flags().IntVarP(&maxRetries, "max-tries", "t", 5, "Max retries per part")
	rootCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing destination file")
	rootCmd.Flags().BoolVarP(&clean, "clean", "c", false, "Delete the incomplete file on abort")
	rootCmd.Flags().StringVar(&region, "region", "", "AWS region (e.g. us-west-2)")
	rootCmd.Flags().StringVarP(&profile, "profile", "p", "", "AWS profile to use")

	// flags without shorthand
	rootCmd.Flags().BoolVar(&insecure, "insecure", false, "Use HTTP instead of HTTPS")
	rootCmd.Flags().BoolVar(&public, "public", false, "Download anonymously (no AWS credentials)")
	rootCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only log warnings and errors")
}
