package main

import (
	"fmt"

	"connectrpc.com/connect"
	"github.com/spf13/cobra"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/models"
)

const FlagCrossChain = "crosschain"

func FaucetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "faucet [receiver]",
		Short: "Mint test tokens to receiver, the wallet address when omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, srv, err := portalFromFlags(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := commandContext(cmd)
			defer cancel()

			req := &models.FaucetMintRequest{Mode: "direct"}
			if len(args) == 1 {
				req.Receiver = args[0]
			}
			if crossChain, _ := cmd.Flags().GetBool(FlagCrossChain); crossChain {
				req.Mode = "crosschain"
			}

			resp, err := srv.FaucetMint(ctx, connect.NewRequest(req))
			if err != nil {
				return cancelledOr(cmd, err)
			}

			out := cmd.OutOrStdout()
			for _, m := range resp.Msg.Messages {
				fmt.Fprintln(out, m)
			}
			if resp.Msg.ItxHash != "" {
				fmt.Fprintf(out, "Interchain tx: %s\n", resp.Msg.ItxHash)
			}
			for _, h := range resp.Msg.TxHashes {
				fmt.Fprintf(out, "Tx: %s\n", h)
			}
			return nil
		},
	}
	cmd.Flags().Bool(FlagCrossChain, false, "fund the receiver through a bridged interchain transaction")
	return cmd
}
