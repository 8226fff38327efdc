// Command release publishes a tagged release with notes read from a file.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/SanteonNL/claimtools/logging"
	"github.com/SanteonNL/claimtools/release"
	"github.com/SanteonNL/claimtools/util"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type options struct {
	tag     string
	notes   string
	repo    string
	baseURI string
	token   string
	log     logging.Options
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
		Use:           "release --release <tag> --release-file <notes>",
		Short:         "Create a GitHub release",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, closer, err := logging.New(cmd.OutOrStdout(), opts.log)
			if err != nil {
				return err
			}
			defer closer.Close()

			opts.token = os.Getenv("GITHUB_ACCESS_TOKEN")
			opts.baseURI = os.Getenv("GITHUB_API_URL")

			if err := run(cmd.Context(), log, opts); err != nil {
				log.Error().Err(err).Str("tag", opts.tag).Msg("Could not create release")
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.tag, "release", "", "The version tag/identifier for the release")
	cmd.Flags().StringVar(&opts.notes, "release-file", "", "Path to file with body of release notes")
	cmd.Flags().StringVar(&opts.repo, "repo", release.DefaultRepo, "Repository as owner/name")
	cmd.Flags().BoolVarP(&opts.log.Verbose, "verbose", "v", false, "Enable debug logging")
	cmd.Flags().StringVar(&opts.log.File, "log-file", "", "Also write logs as JSON to this file")
	_ = cmd.MarkFlagRequired("release")
	_ = cmd.MarkFlagRequired("release-file")
	return cmd
}

func run(ctx context.Context, log zerolog.Logger, opts options) error {
	if opts.token == "" {
		return errors.New("GITHUB_ACCESS_TOKEN is not set")
	}
	if err := util.RequireFiles(opts.notes); err != nil {
		return err
	}
	notes, err := os.ReadFile(opts.notes)
	if err != nil {
		return err
	}

	client := release.NewClient(log, opts.baseURI, opts.token)
	client.Repo = opts.repo
	_, err = client.Create(ctx, opts.tag, string(notes))
	return err
}
