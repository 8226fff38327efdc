// Command acosql generates an INSERT statement for the acos table from a CSV
// with cms_id and name columns, or runs it directly with --exec.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/SanteonNL/claimtools/acos"
	"github.com/SanteonNL/claimtools/logging"
	"github.com/SanteonNL/claimtools/util"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type options struct {
	input       string
	output      string
	exec        bool
	databaseURL string
	log         logging.Options
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
		Use:   "acosql <file.csv>",
		Short: "Generate INSERT statements for the acos table",
		Long: "Generate INSERT statements for the acos table from a CSV with columns: cms_id, name.\n\n" +
			"Pipe to psql or save to a file:\n" +
			"  acosql acos.csv > acos_insert.sql\n" +
			"  psql $DATABASE_URL -f acos_insert.sql",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the SQL
			log, closer, err := logging.New(cmd.ErrOrStderr(), opts.log)
			if err != nil {
				return err
			}
			defer closer.Close()

			opts.input = args[0]
			opts.databaseURL = os.Getenv("DATABASE_URL")
			if err := run(cmd.Context(), log, opts, cmd.OutOrStdout()); err != nil {
				log.Error().Err(err).Msg("Generating acos insert failed")
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.output, "out", "o", "", "Write the SQL to this file instead of stdout")
	cmd.Flags().BoolVar(&opts.exec, "exec", false, "Insert the rows into DATABASE_URL instead of printing SQL")
	cmd.Flags().BoolVarP(&opts.log.Verbose, "verbose", "v", false, "Enable debug logging")
	cmd.Flags().StringVar(&opts.log.File, "log-file", "", "Also write logs as JSON to this file")
	return cmd
}

func run(ctx context.Context, log zerolog.Logger, opts options, stdout io.Writer) error {
	if err := util.RequireFiles(opts.input); err != nil {
		return err
	}
	if opts.output != "" {
		if err := util.RequireAbsent(opts.output); err != nil {
			return err
		}
	}

	f, err := os.Open(opts.input)
	if err != nil {
		return err
	}
	defer f.Close()

	entries, err := acos.Parse(f)
	if err != nil {
		return fmt.Errorf("%s: %w", opts.input, err)
	}
	rows := acos.NewAcos(entries)
	log.Debug().Int("rows", len(rows)).Str("source", opts.input).Msg("Parsed acos")

	if opts.exec {
		return insert(ctx, log, opts.databaseURL, rows)
	}
	if opts.output == "" {
		return acos.Render(stdout, rows)
	}
	return util.WriteFile(opts.output, func(f *os.File) error {
		return acos.Render(f, rows)
	})
}

func insert(ctx context.Context, log zerolog.Logger, databaseURL string, rows []acos.Aco) error {
	if databaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	db, err := acos.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := acos.Exec(ctx, db, rows)
	if err != nil {
		return err
	}
	log.Info().Int64("rows", n).Msg("Inserted acos")
	return nil
}
