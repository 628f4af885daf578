package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/iac-studio/envforge/internal/bootstrap"
	"github.com/iac-studio/envforge/internal/secrets"
	"github.com/iac-studio/envforge/internal/services"
	"github.com/iac-studio/envforge/pkg/config"
	"github.com/iac-studio/envforge/pkg/logger"
)

// Swapped in tests.
var (
	loadConfig = config.Load
	newGPG     = secrets.NewGPG
	newRuntime = bootstrap.New
)

var logLevel string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "envctl",
		Short:         "Operate envforge projects and secrets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := logger.Init(logLevel, "console")
			return err
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")

	root.AddCommand(
		newSecretCmd(),
		newEncryptCmd(),
		newDecryptCmd(),
		newTokenCmd(),
		newProjectsCmd(),
		newProjectCmd(),
		newWebhookSecretCmd(),
	)
	return root
}

func newSecretCmd() *cobra.Command {
	secret := &cobra.Command{
		Use:   "secret",
		Short: "Secret helpers",
	}
	secret.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Print a new webhook-grade secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := secrets.NewGenerator().Generate()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s)
			return nil
		},
	})
	return secret
}

type gpgFlags struct {
	passphraseEnv string
	binary        string
	output        string
}

func (f *gpgFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.passphraseEnv, "passphrase-env", "ENVFORGE_PASSPHRASE", "environment variable holding the passphrase")
	cmd.Flags().StringVar(&f.binary, "gpg", gpgBinary(), "gpg binary (defaults to $GPG_BINARY)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "output file")
}

func gpgBinary() string {
	if b := os.Getenv("GPG_BINARY"); b != "" {
		return b
	}
	return "gpg"
}

func (f *gpgFlags) passphrase() (string, error) {
	p := os.Getenv(f.passphraseEnv)
	if p == "" {
		return "", fmt.Errorf("%s is not set", f.passphraseEnv)
	}
	return p, nil
}

func newEncryptCmd() *cobra.Command {
	var f gpgFlags
	cmd := &cobra.Command{
		Use:   "encrypt <file>",
		Short: "Symmetrically encrypt a file to ASCII armor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pass, err := f.passphrase()
			if err != nil {
				return err
			}
			armored, err := newGPG(f.binary).EncryptFile(cmd.Context(), pass, args[0])
			if err != nil {
				return err
			}
			if f.output == "" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), armored)
				return err
			}
			return os.WriteFile(f.output, []byte(armored), 0o600)
		},
	}
	f.bind(cmd)
	return cmd
}

func newDecryptCmd() *cobra.Command {
	var f gpgFlags
	cmd := &cobra.Command{
		Use:   "decrypt <file>",
		Short: "Decrypt a file encrypted with encrypt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pass, err := f.passphrase()
			if err != nil {
				return err
			}
			g := newGPG(f.binary)
			if f.output != "" {
				return g.DecryptFile(cmd.Context(), pass, args[0], f.output)
			}
			armored, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			plain, err := g.Decrypt(cmd.Context(), pass, string(armored))
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), plain)
			return err
		},
	}
	f.bind(cmd)
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	token := &cobra.Command{
		Use:   "token",
		Short: "API token helpers",
	}
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue an API bearer token signed with API_TOKEN_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tok, err := services.NewTokenService([]byte(cfg.APITokenSecret)).Issue(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	issue.Flags().StringVar(&subject, "subject", "", "token subject")
	issue.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = issue.MarkFlagRequired("subject")
	token.AddCommand(issue)
	return token
}

// withRuntime runs fn against a resolved runtime.
func withRuntime(ctx context.Context, fn func(rt *bootstrap.Runtime) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()
	if err := rt.Resolve(ctx); err != nil {
		return err
	}
	return fn(rt)
}
