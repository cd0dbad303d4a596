package commands

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/tally/internal/model"
	"github.com/cleared-dev/tally/internal/store"
)

func newTxnCommand(opts *globalOptions) *cobra.Command {
	txnCmd := &cobra.Command{
		Use:   "txn",
		Short: "List and correct transactions",
	}
	txnCmd.AddCommand(newTxnListCommand(opts))
	txnCmd.AddCommand(newTxnEditCommand(opts))
	return txnCmd
}

func newTxnListCommand(opts *globalOptions) *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := a.openStore(ctx)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer s.Close()

			accountID := ""
			if account != "" {
				acct, err := s.FindAccountByName(ctx, account)
				if err != nil {
					return err
				}
				if acct == nil {
					return fmt.Errorf("unknown account %q", account)
				}
				accountID = acct.ID
			}

			txns, err := s.ListTransactions(ctx, accountID)
			if err != nil {
				return err
			}
			return printTransactions(cmd.OutOrStdout(), txns)
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "only this account (e.g. CIT, Amex)")

	return cmd
}

func printTransactions(w io.Writer, txns []model.StoredTransaction) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tAMOUNT\tMERCHANT\tCATEGORY\tNOTE\tID")
	for _, t := range txns {
		id := t.ID
		if t.IsManual {
			id += " *"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.Date.Format("2006-01-02"), t.Amount.StringFixed(2), t.Merchant, t.Category, t.Note, id)
	}
	return tw.Flush()
}

func newTxnEditCommand(opts *globalOptions) *cobra.Command {
	var merchant, category, note string

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Correct a transaction; later imports will not overwrite it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var edit model.TransactionEdit
			if cmd.Flags().Changed("merchant") {
				edit.Merchant = &merchant
			}
			if cmd.Flags().Changed("category") {
				edit.Category = &category
			}
			if cmd.Flags().Changed("note") {
				edit.Note = &note
			}
			if edit.Merchant == nil && edit.Category == nil && edit.Note == nil {
				return errors.New("nothing to edit: pass --merchant, --category or --note")
			}

			a, err := loadApp(cmd, opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := a.openStore(ctx)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer s.Close()

			txn, err := s.EditTransaction(ctx, args[0], edit)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no transaction with id %s", args[0])
			}
			if err != nil {
				return err
			}
			return printTransactions(cmd.OutOrStdout(), []model.StoredTransaction{*txn})
		},
	}

	cmd.Flags().StringVar(&merchant, "merchant", "", "new merchant")
	cmd.Flags().StringVar(&category, "category", "", "new category")
	cmd.Flags().StringVar(&note, "note", "", "new note")

	return cmd
}
