package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/filipbart/farms-manager-invoices/internal/common"
	"github.com/filipbart/farms-manager-invoices/internal/engine"
	"github.com/filipbart/farms-manager-invoices/internal/model"
)

// batchInvoice is the normalized invoice shape the ingestion collaborator
// delivers: identity, amounts, dates and line-item text are already parsed.
type batchInvoice struct {
	Number      string              `json:"number"`
	IssueDate   string              `json:"issue_date"`
	GrossAmount float64             `json:"gross_amount"`
	NetAmount   float64             `json:"net_amount"`
	VATAmount   float64             `json:"vat_amount"`
	SellerName  string              `json:"seller_name"`
	SellerTaxID string              `json:"seller_tax_id"`
	BuyerName   string              `json:"buyer_name"`
	BuyerTaxID  string              `json:"buyer_tax_id"`
	TaxEntityID string              `json:"tax_entity_id"`
	Direction   string              `json:"direction"`
	Lines       []model.InvoiceLine `json:"lines"`
}

func (b batchInvoice) toModel() (model.Invoice, error) {
	issueDate, err := time.Parse("2006-01-02", b.IssueDate)
	if err != nil {
		return model.Invoice{}, fmt.Errorf("invoice %q: invalid issue date %q", b.Number, b.IssueDate)
	}

	direction := model.InvoiceDirection(b.Direction)
	if direction == "" {
		direction = model.DirectionPurchase
	}

	inv := model.Invoice{
		Number:      b.Number,
		IssueDate:   issueDate,
		GrossAmount: b.GrossAmount,
		NetAmount:   b.NetAmount,
		VATAmount:   b.VATAmount,
		SellerName:  b.SellerName,
		SellerTaxID: b.SellerTaxID,
		BuyerName:   b.BuyerName,
		BuyerTaxID:  b.BuyerTaxID,
		Direction:   direction,
		Lines:       b.Lines,
	}
	if b.TaxEntityID != "" {
		entity := b.TaxEntityID
		inv.TaxEntityID = &entity
	}
	return inv, nil
}

func classifyCmd() *cobra.Command {
	var (
		actor string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "classify <batch.json>",
		Short: "Ingest and classify a batch of normalized invoices",
		Long: `Reads a JSON file of normalized invoices, runs each one through duplicate
detection and the three rule-matcher passes, and persists the results.
Exact duplicates are skipped (reported, not inserted) unless --force is set;
fuzzy near-duplicates are reported as warnings for manual review.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return common.NewUserError(fmt.Sprintf("cannot read batch file %s", args[0]), err)
			}

			var batch []batchInvoice
			if err := json.Unmarshal(data, &batch); err != nil {
				return common.NewUserError(fmt.Sprintf("batch file %s is not valid JSON", args[0]), err)
			}
			if len(batch) == 0 {
				fmt.Println(subtleStyle.Render("Batch file contains no invoices."))
				return nil
			}

			invoices := make([]model.Invoice, 0, len(batch))
			for _, b := range batch {
				inv, err := b.toModel()
				if err != nil {
					return err
				}
				invoices = append(invoices, inv)
			}

			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			eng, err := initEngine(store)
			if err != nil {
				return err
			}

			bar := progressbar.NewOptions(len(invoices),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription("Classifying invoices..."),
			)

			opts := engine.Options{Actor: actor, ForceInsert: force}
			var decisions []engine.Decision
			for i := range invoices {
				decision, err := eng.Classify(cmd.Context(), &invoices[i], opts)
				if err != nil {
					return fmt.Errorf("failed to classify invoice %q: %w", invoices[i].Number, err)
				}
				decisions = append(decisions, *decision)
				_ = bar.Add(1)
			}
			fmt.Fprintln(os.Stderr)

			printDecisions(invoices, decisions)
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "import", "actor id recorded on audit entries")
	cmd.Flags().BoolVar(&force, "force", false, "insert even when an exact duplicate exists")
	return cmd
}

func printDecisions(invoices []model.Invoice, decisions []engine.Decision) {
	inserted, duplicates := 0, 0

	for i, d := range decisions {
		number := invoices[i].Number
		switch {
		case d.DuplicateOfID != "" && !d.Inserted:
			duplicates++
			fmt.Println(warningStyle.Render(
				fmt.Sprintf("  %s: exact duplicate of %s, skipped", number, d.DuplicateOfID)))
		default:
			inserted++
			fmt.Printf("  %s: %s", number, describeAssignments(d))
			if d.DuplicateOfID != "" {
				fmt.Print(" ", warningStyle.Render(
					fmt.Sprintf("(forced over duplicate %s)", d.DuplicateOfID)))
			}
			if len(d.SimilarIDs) > 0 {
				fmt.Print(" ", warningStyle.Render(
					fmt.Sprintf("(similar to %s)", strings.Join(d.SimilarIDs, ", "))))
			}
			fmt.Println()
		}
	}

	fmt.Println(titleStyle.Render(
		fmt.Sprintf("Classified %d invoice(s): %d inserted, %d duplicates skipped",
			len(decisions), inserted, duplicates)))
}

func describeAssignments(d engine.Decision) string {
	var parts []string
	if d.AssignedUser != nil {
		parts = append(parts, "user="+*d.AssignedUser)
	}
	if d.AssignedFarm != nil {
		parts = append(parts, "farm="+*d.AssignedFarm)
	}
	if d.AssignedModule != nil {
		parts = append(parts, "module="+string(*d.AssignedModule))
	}
	if len(parts) == 0 {
		return "no rule matched"
	}
	return strings.Join(parts, " ")
}
