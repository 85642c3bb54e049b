package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/on-cure/oncare/internal/errors"
	"github.com/on-cure/oncare/internal/telemetry"
	"github.com/on-cure/oncare/internal/tokenomics"
	"github.com/on-cure/oncare/internal/tui"
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Check your balance and send tips",
	Long: `Wallet commands run against a simulated ledger until the backend ledger
is live. Balances and history are illustrative.`,
}

var walletFlags struct {
	amount  float64
	ksh     bool
	message string
	yes     bool
	page    int
	limit   int
	json    bool
}

var walletBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the wallet balance in HBAR and KSH",
	RunE:  runWalletBalance,
}

var walletTipCmd = &cobra.Command{
	Use:   "tip <user-id>",
	Short: "Send a tip to another member",
	Args:  cobra.ExactArgs(1),
	RunE:  runWalletTip,
}

var walletHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent transactions",
	RunE:  runWalletHistory,
}

var walletDepositCmd = &cobra.Command{
	Use:   "deposit <amount>",
	Short: "Add HBAR to the wallet",
	Args:  cobra.ExactArgs(1),
	RunE:  runWalletTransfer(tokenomics.TypeDeposit),
}

var walletWithdrawCmd = &cobra.Command{
	Use:   "withdraw <amount>",
	Short: "Move HBAR out of the wallet",
	Args:  cobra.ExactArgs(1),
	RunE:  runWalletTransfer(tokenomics.TypeWithdrawal),
}

var walletRateCmd = &cobra.Command{
	Use:   "rate",
	Short: "Show the HBAR/KSH exchange rate",
	RunE:  runWalletRate,
}

func init() {
	rootCmd.AddCommand(walletCmd)
	walletCmd.AddCommand(walletBalanceCmd, walletTipCmd, walletHistoryCmd,
		walletDepositCmd, walletWithdrawCmd, walletRateCmd)

	walletBalanceCmd.Flags().BoolVar(&walletFlags.json, "json", false, "print as JSON")

	tf := walletTipCmd.Flags()
	tf.Float64Var(&walletFlags.amount, "amount", 0, "amount to send (HBAR unless --ksh)")
	tf.BoolVar(&walletFlags.ksh, "ksh", false, "interpret --amount as Kenyan shillings")
	tf.StringVar(&walletFlags.message, "message", "", "note attached to the tip")
	tf.BoolVarP(&walletFlags.yes, "yes", "y", false, "skip the confirmation prompt")

	hf := walletHistoryCmd.Flags()
	hf.IntVar(&walletFlags.page, "page", 1, "page number")
	hf.IntVar(&walletFlags.limit, "limit", 20, "transactions per page")
	hf.BoolVar(&walletFlags.json, "json", false, "print as JSON")

	for _, c := range []*cobra.Command{walletDepositCmd, walletWithdrawCmd} {
		c.Flags().BoolVar(&walletFlags.ksh, "ksh", false, "interpret the amount as Kenyan shillings")
		c.Flags().BoolVar(&walletFlags.json, "json", false, "print as JSON")
	}
	walletRateCmd.Flags().BoolVar(&walletFlags.json, "json", false, "print as JSON")
}

func runWalletBalance(cmd *cobra.Command, _ []string) error {
	a := app()
	ctx := cmd.Context()
	if _, err := a.RequireUser(ctx); err != nil {
		return err
	}

	bal, err := telemetry.Traced(ctx, "wallet.Balance", a.Ledger.Balance)
	if err != nil {
		return err
	}
	if walletFlags.json {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(bal)
	}
	printf(cmd, "%.2f HBAR (KSH %.2f)\n", bal.HBAR, bal.KSH)
	return nil
}

func runWalletTip(cmd *cobra.Command, args []string) error {
	a := app()
	recipient, err := parseID(args[0])
	if err != nil {
		return errors.New(errors.ErrCodeInvalidRecipient, err.Error())
	}
	ctx := cmd.Context()
	me, err := a.RequireUser(ctx)
	if err != nil {
		return err
	}
	if recipient == me.ID {
		return errors.New(errors.ErrCodeInvalidRecipient, "cannot tip yourself")
	}

	amount := walletFlags.amount
	if walletFlags.ksh {
		amount = tokenomics.ToHBAR(amount)
	}

	if amount > 0 && !walletFlags.yes && tui.ShouldPrompt() {
		ok, err := tui.PromptForConfirmation(
			fmt.Sprintf("Send %.4f HBAR (KSH %.2f) to user %d?", amount, tokenomics.ToKSH(amount), recipient), true)
		if err != nil {
			return err
		}
		if !ok {
			printf(cmd, "Cancelled\n")
			return nil
		}
	}

	tx, err := telemetry.Traced(ctx, "wallet.SendTip", func(ctx context.Context) (*tokenomics.Transaction, error) {
		return a.Ledger.SendTip(ctx, recipient, amount, walletFlags.message)
	})
	if err != nil {
		return err
	}
	printf(cmd, "Sent %.4f HBAR (KSH %.2f) to user %d\n", tx.Amount, tx.KSHAmount, recipient)
	printf(cmd, "  Transaction: %s\n", tx.ID)
	return nil
}

func runWalletHistory(cmd *cobra.Command, _ []string) error {
	a := app()
	ctx := cmd.Context()
	if _, err := a.RequireUser(ctx); err != nil {
		return err
	}

	page, err := a.Ledger.Transactions(ctx, walletFlags.page, walletFlags.limit)
	if err != nil {
		return err
	}
	if walletFlags.json {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(page)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tTYPE\tHBAR\tKSH\tDESCRIPTION")
	for _, tx := range page.Transactions {
		fmt.Fprintf(w, "%s\t%s\t%.4f\t%.2f\t%s\n",
			tx.Timestamp.Local().Format("2006-01-02 15:04"), tx.Type, tx.Amount, tx.KSHAmount, tx.Description)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if page.HasMore {
		printf(cmd, "Page %d, %d transactions in total; use --page %d for more\n", page.Page, page.Total, page.Page+1)
	}
	return nil
}

func runWalletTransfer(typ string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a := app()
		amount, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return errors.New(errors.ErrCodeInvalidAmount, fmt.Sprintf("invalid amount %q", args[0])).
				WithSuggestion("Pass a number, e.g. oncare wallet " + cmd.Name() + " 10")
		}
		if walletFlags.ksh {
			amount = tokenomics.ToHBAR(amount)
		}
		ctx := cmd.Context()
		if _, err := a.RequireUser(ctx); err != nil {
			return err
		}

		tx, err := telemetry.Traced(ctx, "wallet."+typ, func(ctx context.Context) (*tokenomics.Transaction, error) {
			if typ == tokenomics.TypeWithdrawal {
				return a.Ledger.Withdraw(ctx, amount)
			}
			return a.Ledger.Deposit(ctx, amount)
		})
		if err != nil {
			return err
		}
		if walletFlags.json {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(tx)
		}
		printf(cmd, "%s: %.4f HBAR (KSH %.2f)\n", tx.Description, tx.Amount, tx.KSHAmount)
		printf(cmd, "  Transaction: %s\n", tx.ID)
		return nil
	}
}

func runWalletRate(cmd *cobra.Command, _ []string) error {
	rate := app().Ledger.ExchangeRate()
	if walletFlags.json {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(rate)
	}
	printf(cmd, "1 HBAR = %.2f KSH\n", rate.HBARToKSH)
	printf(cmd, "1 KSH = %.4f HBAR\n", rate.KSHToHBAR)
	return nil
}
