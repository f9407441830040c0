package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/app"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/config"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/rpc"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/wallet"
)

const (
	FlagConfig    = "config"
	DefaultConfig = "./portal-config.toml"

	FlagYes      = "yes"
	FlagAskKey   = "ask-key"
	FlagQuantity = "quantity"
	FlagVerbose  = "verbose"
)

func main() {
	if err := RootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func RootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "portalctl",
		Short:         "Spectra Index Portal CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.WarnLevel
			if verbose, _ := cmd.Flags().GetBool(FlagVerbose); verbose {
				level = zerolog.DebugLevel
			}
			zerolog.SetGlobalLevel(level)
		},
	}

	rootCmd.AddCommand(TokensCmd())
	rootCmd.AddCommand(IndexCmd())
	rootCmd.AddCommand(FaucetCmd())

	rootCmd.PersistentFlags().String(FlagConfig, DefaultConfig, "portal config file")
	rootCmd.PersistentFlags().BoolP(FlagYes, "y", false, "send transactions without asking for confirmation")
	rootCmd.PersistentFlags().Bool(FlagAskKey, false, "read the private key from the terminal")
	rootCmd.PersistentFlags().BoolP(FlagVerbose, "v", false, "verbose output")

	return rootCmd
}

// portalFromFlags loads the config and wires the same services the server
// uses. The caller must Close the returned app.
func portalFromFlags(cmd *cobra.Command) (*app.App, *rpc.PortalServer, error) {
	path, _ := cmd.Flags().GetString(FlagConfig)
	cfg, err := config.NewDefaultLoader().Load(path)
	if err != nil {
		return nil, nil, err
	}

	if askKey, _ := cmd.Flags().GetBool(FlagAskKey); askKey {
		key, err := wallet.ReadKey("Private key: ")
		if err != nil {
			return nil, nil, err
		}
		cfg.Wallet.PrivateKey = key
	}

	if err := config.NewValidator().Validate(cfg).Err(); err != nil {
		return nil, nil, err
	}

	opts := app.Options{SkipFetch: true}
	if yes, _ := cmd.Flags().GetBool(FlagYes); !yes {
		opts.WrapWallet = func(w wallet.Wallet) wallet.Wallet {
			return wallet.NewConfirmingSigner(w, os.Stdin, cmd.ErrOrStderr())
		}
	}

	a, err := app.Build(cmd.Context(), cfg, opts)
	if err != nil {
		return nil, nil, err
	}
	return a, rpc.NewPortalServer(a.Services), nil
}

// commandContext bounds a command so a stuck rpc cannot hang the terminal.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, 5*time.Minute)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
