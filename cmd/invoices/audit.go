package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func auditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit <invoice-id>",
		Short: "Print the audit trail of an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entries, err := store.ListAuditEntries(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Println(titleStyle.Render(fmt.Sprintf("Audit trail for invoice %s", args[0])))
			if len(entries) == 0 {
				fmt.Println(subtleStyle.Render("  no entries"))
				return nil
			}

			for _, e := range entries {
				line := fmt.Sprintf("  %s  %-26s  actor=%s", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Action, e.ActorID)
				if e.Field != "" {
					line += fmt.Sprintf("  %s: %q -> %q", e.Field, e.OldValue, e.NewValue)
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}
