// Command ndjson2csv flattens an NDJSON file of FHIR resources into a CSV
// with one column per dotted path found in the data.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SanteonNL/claimtools/flatten"
	"github.com/SanteonNL/claimtools/logging"
	"github.com/SanteonNL/claimtools/ndjson"
	"github.com/SanteonNL/claimtools/tabular"
	"github.com/SanteonNL/claimtools/util"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const defaultOutputPrefix = "flat_fhir_output_"

type options struct {
	input       string
	output      string
	skipInvalid bool
	progress    int
	prefix      string
	sep         string
	log         logging.Options
}

func init() {
	// .env is optional for this tool
	_ = godotenv.Load(".env")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:           "ndjson2csv <inputfile> [output_filename]",
		Short:         "Convert FHIR data stored in an NDJSON file to a CSV format",
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, closer, err := logging.New(cmd.OutOrStdout(), opts.log)
			if err != nil {
				return err
			}
			defer closer.Close()

			opts.input = args[0]
			if len(args) > 1 {
				opts.output = args[1]
			}

			output, err := run(cmd.Context(), log, opts, time.Now())
			if err != nil {
				log.Error().Err(err).Msg("Flattening failed")
				return err
			}
			log.Info().Str("output", output).Msg("File flattened successfully")
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.skipInvalid, "skip-invalid", false, "Log and skip malformed lines instead of aborting")
	cmd.Flags().IntVar(&opts.progress, "progress", tabular.DefaultProgress, "Log progress every n records, 0 disables")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "", "Prefix for every column name")
	cmd.Flags().StringVar(&opts.sep, "sep", flatten.DefaultSep, "Separator between nested keys")
	cmd.Flags().BoolVarP(&opts.log.Verbose, "verbose", "v", false, "Enable debug logging")
	cmd.Flags().StringVar(&opts.log.File, "log-file", "", "Also write logs as JSON to this file")
	return cmd
}

// run converts opts.input and returns the path it wrote.
func run(ctx context.Context, log zerolog.Logger, opts options, now time.Time) (string, error) {
	output := opts.output
	if output == "" {
		output = util.Timestamped(defaultOutputPrefix, now)
	}
	output = util.EnsureSuffix(output, ".csv")

	if err := util.RequireFiles(opts.input); err != nil {
		return "", err
	}
	if err := util.RequireAbsent(output); err != nil {
		return "", err
	}

	src, err := ndjson.Open(opts.input)
	if err != nil {
		return "", err
	}
	defer src.Close()

	assembler := tabular.NewAssembler(log, tabular.Options{
		SkipInvalid: opts.skipInvalid,
		Progress:    opts.progress,
		Flatten:     flatten.Options{Prefix: opts.prefix, Sep: opts.sep},
	})

	err = util.WriteFile(output, func(f *os.File) error {
		_, err := assembler.Convert(ctx, src, f)
		return err
	})
	if err != nil {
		return "", err
	}

	if abs, err := util.GetAbsolutePath(output); err == nil {
		output = abs
	}
	return output, nil
}
