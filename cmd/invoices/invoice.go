package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/filipbart/farms-manager-invoices/internal/engine"
	"github.com/filipbart/farms-manager-invoices/internal/model"
)

func invoiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoice",
		Short: "Manage invoice lifecycle and assignments",
	}

	cmd.AddCommand(statusCmd("accept", "Accept an invoice", model.StatusAccepted))
	cmd.AddCommand(statusCmd("reject", "Reject an invoice (excludes it from future matching)", model.StatusRejected))
	cmd.AddCommand(statusCmd("send", "Mark an invoice as sent to the accounting office", model.StatusSentToOffice))
	cmd.AddCommand(payCmd())
	cmd.AddCommand(assignCmd())
	return cmd
}

func statusCmd(use, short string, status model.InvoiceStatus) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   use + " <invoice-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			tracker := engine.NewTracker(store)
			if err := tracker.SetStatus(cmd.Context(), args[0], actor, status); err != nil {
				return err
			}

			fmt.Println(successStyle.Render(fmt.Sprintf("Invoice %s is now %s", args[0], status)))
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "actor id recorded on the audit entry")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func payCmd() *cobra.Command {
	var (
		actor  string
		status string
	)

	cmd := &cobra.Command{
		Use:   "pay <invoice-id>",
		Short: "Update an invoice's payment status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			tracker := engine.NewTracker(store)
			next := model.PaymentStatus(status)
			if err := tracker.SetPaymentStatus(cmd.Context(), args[0], actor, next); err != nil {
				return err
			}

			fmt.Println(successStyle.Render(fmt.Sprintf("Invoice %s payment status is now %s", args[0], next)))
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "actor id recorded on the audit entry")
	cmd.Flags().StringVar(&status, "status", "", "payment status (partially_paid, suspended, paid_cash, paid_transfer)")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func assignCmd() *cobra.Command {
	var (
		actor       string
		user        string
		farm        string
		module      string
		taxEntity   string
		clearUser   bool
		clearFarm   bool
		clearModule bool
		clearEntity bool
	)

	cmd := &cobra.Command{
		Use:   "assign <invoice-id>",
		Short: "Manually reassign an invoice's routing fields",
		Long: `Overrides the rule-based assignment for one invoice. Only the flags you
pass are touched; clearing an assignment is explicit (--clear-*). Each
changed field gets its own audit entry.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch model.InvoicePatch
			switch {
			case clearUser:
				patch.AssignedUser = model.ClearField[string]()
			case cmd.Flags().Changed("user"):
				patch.AssignedUser = model.SetField(user)
			}
			switch {
			case clearFarm:
				patch.AssignedFarm = model.ClearField[string]()
			case cmd.Flags().Changed("farm"):
				patch.AssignedFarm = model.SetField(farm)
			}
			switch {
			case clearModule:
				patch.AssignedModule = model.ClearField[model.ModuleType]()
			case cmd.Flags().Changed("module"):
				patch.AssignedModule = model.SetField(model.ModuleType(module))
			}
			switch {
			case clearEntity:
				patch.TaxEntityID = model.ClearField[string]()
			case cmd.Flags().Changed("tax-entity"):
				patch.TaxEntityID = model.SetField(taxEntity)
			}

			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			tracker := engine.NewTracker(store)
			if err := tracker.Reassign(cmd.Context(), args[0], actor, patch); err != nil {
				return err
			}

			fmt.Println(successStyle.Render(fmt.Sprintf("Invoice %s reassigned", args[0])))
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "actor id recorded on audit entries")
	cmd.Flags().StringVar(&user, "user", "", "assign to a user")
	cmd.Flags().StringVar(&farm, "farm", "", "assign to a farm")
	cmd.Flags().StringVar(&module, "module", "", "assign to an accounting module")
	cmd.Flags().StringVar(&taxEntity, "tax-entity", "", "link to a tax business entity")
	cmd.Flags().BoolVar(&clearUser, "clear-user", false, "clear the user assignment")
	cmd.Flags().BoolVar(&clearFarm, "clear-farm", false, "clear the farm assignment")
	cmd.Flags().BoolVar(&clearModule, "clear-module", false, "clear the module assignment")
	cmd.Flags().BoolVar(&clearEntity, "clear-tax-entity", false, "clear the tax entity link")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}
