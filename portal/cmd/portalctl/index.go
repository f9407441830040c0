package main

import (
	"fmt"
	"strings"

	"connectrpc.com/connect"
	"github.com/spf13/cobra"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/models"
)

const (
	FlagName     = "name"
	FlagSymbol   = "symbol"
	FlagItem     = "item"
	FlagPosition = "position"
	FlagUser     = "user"
)

func TokensCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tokens [search]",
		Short: "List the token list, optionally filtered by name or ticker",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := portalFromFlags(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			term := ""
			if len(args) == 1 {
				term = args[0]
			}
			for _, t := range a.Services.Tokens.Search(term) {
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %-24s %s (%d decimals)\n", t.Ticker, t.Name, t.Address, t.Decimals)
			}
			return nil
		},
	}
}

func IndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Create, inspect and operate indexes",
	}
	cmd.AddCommand(indexListCmd())
	cmd.AddCommand(indexShowCmd())
	cmd.AddCommand(indexPreviewCmd())
	cmd.AddCommand(indexCreateCmd())
	cmd.AddCommand(indexActionCmd("initialize", "Enable the issuance module of an index"))
	cmd.AddCommand(indexActionCmd("approve", "Approve the issuance module for the components of an index"))
	cmd.AddCommand(indexActionCmd("issue", "Issue index tokens to the wallet"))
	cmd.AddCommand(indexActionCmd("redeem", "Redeem index tokens of the wallet"))
	return cmd
}

func indexListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every index registered on the controller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, srv, err := portalFromFlags(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := commandContext(cmd)
			defer cancel()

			resp, err := srv.ListIndexes(ctx, connect.NewRequest(&models.ListIndexesRequest{}))
			if err != nil {
				return err
			}
			for _, addr := range resp.Msg.Indexes {
				fmt.Fprintln(cmd.OutOrStdout(), addr)
			}
			return nil
		},
	}
}

func indexShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [address]",
		Short: "Show the state, actions and distribution of an index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, srv, err := portalFromFlags(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := commandContext(cmd)
			defer cancel()

			quantity, _ := cmd.Flags().GetString(FlagQuantity)
			user, _ := cmd.Flags().GetString(FlagUser)
			resp, err := srv.GetIndex(ctx, connect.NewRequest(&models.GetIndexRequest{
				Address:  args[0],
				Quantity: quantity,
				User:     user,
			}))
			if err != nil {
				return err
			}
			return printJSON(cmd, resp.Msg)
		},
	}
	cmd.Flags().String(FlagQuantity, "1", "index tokens the required units are computed for")
	cmd.Flags().String(FlagUser, "", "flag this address if it manages the index")
	return cmd
}

func indexPreviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show the percentages of a selection without creating anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, srv, err := portalFromFlags(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			items, err := itemsFromFlags(cmd)
			if err != nil {
				return err
			}
			resp, err := srv.PreviewComposition(cmd.Context(), connect.NewRequest(&models.PreviewCompositionRequest{Items: items}))
			if err != nil {
				return err
			}
			for _, s := range resp.Msg.Shares {
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %10s %7s%%\n", s.Ticker, s.Amount, s.Percentage)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-8s %10s\n", "TOTAL", resp.Msg.Total)
			return nil
		},
	}
	cmd.Flags().StringSlice(FlagItem, nil, "component as TICKER=AMOUNT, repeatable")
	return cmd
}

func indexCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an index through the SetTokenCreator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, srv, err := portalFromFlags(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := commandContext(cmd)
			defer cancel()

			items, err := itemsFromFlags(cmd)
			if err != nil {
				return err
			}
			name, _ := cmd.Flags().GetString(FlagName)
			symbol, _ := cmd.Flags().GetString(FlagSymbol)
			resp, err := srv.CreateIndex(ctx, connect.NewRequest(&models.CreateIndexRequest{
				Name:   name,
				Symbol: symbol,
				Items:  items,
			}))
			if err != nil {
				return cancelledOr(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Index creation submitted: %s\n", resp.Msg.TxHash)
			return nil
		},
	}
	cmd.Flags().String(FlagName, "", "index name")
	cmd.Flags().String(FlagSymbol, "", "index symbol")
	cmd.Flags().StringSlice(FlagItem, nil, "component as TICKER=AMOUNT, repeatable")
	return cmd
}

func indexActionCmd(action, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   action + " [address]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, srv, err := portalFromFlags(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := commandContext(cmd)
			defer cancel()

			quantity, _ := cmd.Flags().GetString(FlagQuantity)
			req := &models.IndexActionRequest{Address: args[0], Quantity: quantity}
			if action == "approve" && cmd.Flags().Changed(FlagPosition) {
				position, _ := cmd.Flags().GetInt(FlagPosition)
				req.Position = &position
			}

			var resp *connect.Response[models.TxResponse]
			switch action {
			case "initialize":
				resp, err = srv.InitializeIndex(ctx, connect.NewRequest(req))
			case "approve":
				resp, err = srv.ApproveComponents(ctx, connect.NewRequest(req))
			case "issue":
				resp, err = srv.IssueIndex(ctx, connect.NewRequest(req))
			case "redeem":
				resp, err = srv.RedeemIndex(ctx, connect.NewRequest(req))
			}
			if err != nil {
				return cancelledOr(cmd, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s submitted: %s\n", action, resp.Msg.TxHash)
			if resp.Msg.Index != nil {
				return printJSON(cmd, resp.Msg.Index)
			}
			return nil
		},
	}
	if action != "initialize" {
		cmd.Flags().String(FlagQuantity, "1", "index token quantity")
	}
	if action == "approve" {
		cmd.Flags().Int(FlagPosition, 0, "approve only the component at this position, all when unset")
	}
	return cmd
}

// cancelledOr reports a declined confirmation as a plain notice and returns
// every other error unchanged.
func cancelledOr(cmd *cobra.Command, err error) error {
	if connect.CodeOf(err) == connect.CodeCanceled {
		fmt.Fprintln(cmd.OutOrStdout(), "Cancelled, nothing was sent.")
		return nil
	}
	return err
}

// itemsFromFlags parses repeated TICKER=AMOUNT flags. A bare ticker selects
// amount 1.
func itemsFromFlags(cmd *cobra.Command) ([]models.CompositionItem, error) {
	raw, _ := cmd.Flags().GetStringSlice(FlagItem)
	items := make([]models.CompositionItem, 0, len(raw))
	for _, r := range raw {
		ticker, amount, _ := strings.Cut(r, "=")
		ticker = strings.TrimSpace(ticker)
		if ticker == "" {
			return nil, fmt.Errorf("invalid item %q, expected TICKER=AMOUNT", r)
		}
		items = append(items, models.CompositionItem{Ticker: ticker, Amount: strings.TrimSpace(amount)})
	}
	return items, nil
}
