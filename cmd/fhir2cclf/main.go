// Command fhir2cclf converts Patient, Coverage and ExplanationOfBenefit
// NDJSON exports into CCLF files.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/SanteonNL/claimtools/cclf"
	"github.com/SanteonNL/claimtools/logging"
	"github.com/SanteonNL/claimtools/ndjson"
	"github.com/SanteonNL/claimtools/tabular"
	"github.com/SanteonNL/claimtools/util"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slices"
)

var supportedFHIRVersions = []string{"3"}

type options struct {
	patient  string
	coverage string
	eob      string
	output   string
	fhir     string
	files    []string
	progress int
	log      logging.Options
}

func init() {
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
		Use:           "fhir2cclf <patient> <coverage> <eob> [output_filename]",
		Short:         "Convert FHIR data stored in NDJSON files to CCLF format",
		Long:          "Each CCLF file is written as <cclf>_<output_filename>.csv, e.g. cclf8_my_file_name.csv.",
		Args:          cobra.RangeArgs(3, 4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, closer, err := logging.New(cmd.OutOrStdout(), opts.log)
			if err != nil {
				return err
			}
			defer closer.Close()

			opts.patient, opts.coverage, opts.eob = args[0], args[1], args[2]
			if len(args) > 3 {
				opts.output = args[3]
			}

			outputs, err := run(cmd.Context(), log, opts, time.Now())
			if err != nil {
				log.Error().Err(err).Msg("Conversion failed")
				return err
			}
			log.Info().Strs("outputs", outputs).Msg("CCLF files written successfully")
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.fhir, "fhir", "f", "3", "The version of FHIR represented in your data")
	cmd.Flags().StringSliceVar(&opts.files, "cclf", []string{"cclf8", "cclf9"},
		fmt.Sprintf("CCLF files to build (%s)", strings.Join(cclf.Names(), ", ")))
	cmd.Flags().IntVar(&opts.progress, "progress", tabular.DefaultProgress, "Log progress every n patients, 0 disables")
	cmd.Flags().BoolVarP(&opts.log.Verbose, "verbose", "v", false, "Enable debug logging")
	cmd.Flags().StringVar(&opts.log.File, "log-file", "", "Also write logs as JSON to this file")
	return cmd
}

type job struct {
	m    cclf.ColumnMap
	path string
}

// run builds every requested CCLF file and returns the paths written. Either
// all files are written or none.
func run(ctx context.Context, log zerolog.Logger, opts options, now time.Time) ([]string, error) {
	if !slices.Contains(supportedFHIRVersions, opts.fhir) {
		return nil, fmt.Errorf("unsupported FHIR version %q, supported: %s", opts.fhir, strings.Join(supportedFHIRVersions, ", "))
	}

	output := opts.output
	if output == "" {
		output = util.Timestamped("", now)
	}

	dir, base := filepath.Split(strings.TrimSuffix(output, ".csv"))

	var jobs []job
	for _, name := range opts.files {
		m, err := cclf.Lookup(name)
		if err != nil {
			return nil, err
		}
		if slices.ContainsFunc(jobs, func(j job) bool { return j.m.Name == m.Name }) {
			log.Debug().Str("cclf", m.Name).Msg("Ignoring repeated CCLF file")
			continue
		}
		jobs = append(jobs, job{m: m, path: filepath.Join(dir, fmt.Sprintf("%s_%s.csv", strings.ToLower(m.Name), base))})
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("no CCLF files requested")
	}

	if err := util.RequireFiles(opts.patient, opts.coverage, opts.eob); err != nil {
		return nil, err
	}
	for _, j := range jobs {
		if err := util.RequireAbsent(j.path); err != nil {
			return nil, err
		}
	}

	var src cclf.Sources
	for _, s := range []struct {
		path string
		dst  **ndjson.Source
	}{
		{opts.patient, &src.Patient},
		{opts.coverage, &src.Coverage},
		{opts.eob, &src.Eob},
	} {
		f, err := ndjson.Open(s.path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		*s.dst = f
	}

	builder := cclf.NewBuilder(log, opts.progress)
	var outputs util.Outputs
	for _, j := range jobs {
		err := outputs.Create(j.path, func(f *os.File) error {
			_, err := builder.Build(ctx, j.m, src, f)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", j.m.Name, err)
		}
	}
	return outputs.Commit()
}
