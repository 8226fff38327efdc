// Command decrypt opens an encrypted bulk export file with the client's
// private key.
package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/SanteonNL/claimtools/logging"
	"github.com/SanteonNL/claimtools/payload"
	"github.com/SanteonNL/claimtools/util"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type options struct {
	key        string
	file       string
	privateKey string
	out        string
	log        logging.Options
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
		Use:           "decrypt --key <hex> --file <UUID>.ndjson --pk <private.pem>",
		Short:         "Decrypt a bulk export payload",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout may carry the plaintext
			log, closer, err := logging.New(cmd.ErrOrStderr(), opts.log)
			if err != nil {
				return err
			}
			defer closer.Close()

			if err := run(log, opts, cmd.OutOrStdout()); err != nil {
				log.Error().Err(err).Msg("Decryption failed")
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.key, "key", "", "encrypted symmetric key used for file decryption (hex-encoded string)")
	cmd.Flags().StringVar(&opts.file, "file", "", "location of encrypted file")
	cmd.Flags().StringVar(&opts.privateKey, "pk", "", "location of private key to use for decryption of symmetric key")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "write the plaintext to this file instead of stdout")
	cmd.Flags().BoolVarP(&opts.log.Verbose, "verbose", "v", false, "Enable debug logging")
	cmd.Flags().StringVar(&opts.log.File, "log-file", "", "Also write logs as JSON to this file")
	for _, name := range []string{"key", "file", "pk"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func run(log zerolog.Logger, opts options, stdout io.Writer) error {
	if opts.key == "" || opts.file == "" || opts.privateKey == "" {
		return errors.New("missing argument(s)")
	}
	if !payload.ValidFilename(opts.file) {
		return payload.ErrInvalidFilename
	}
	if err := util.RequireFiles(opts.file, opts.privateKey); err != nil {
		return err
	}
	if opts.out != "" {
		if err := util.RequireAbsent(opts.out); err != nil {
			return err
		}
	}

	pk, err := payload.LoadPrivateKey(opts.privateKey)
	if err != nil {
		return err
	}
	plaintext, err := payload.DecryptFile(pk, opts.key, opts.file)
	if err != nil {
		return err
	}
	log.Debug().Str("file", opts.file).Int("bytes", len(plaintext)).Msg("Decrypted payload")

	if opts.out == "" {
		_, err = stdout.Write(plaintext)
		return err
	}
	err = util.WriteFile(opts.out, func(f *os.File) error {
		_, err := f.Write(plaintext)
		return err
	})
	if err != nil {
		return err
	}
	log.Info().Str("output", opts.out).Msg("Payload decrypted")
	return nil
}
