package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/filipbart/farms-manager-invoices/internal/model"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage assignment rules",
		Long: `Manage the three priority-ordered rule collections that route invoices
to users, farms and accounting modules. Rules are evaluated in ascending
priority order; the first matching rule wins.`,
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesAddCmd())
	cmd.AddCommand(rulesUpdateCmd())
	cmd.AddCommand(rulesDeleteCmd())
	cmd.AddCommand(rulesReorderCmd())
	return cmd
}

func parseKind(raw string) (model.RuleKind, error) {
	kind := model.RuleKind(raw)
	if !model.ValidRuleKind(kind) {
		return "", fmt.Errorf("invalid rule kind %q (want user, farm or module)", raw)
	}
	return kind, nil
}

func rulesListCmd() *cobra.Command {
	var kindFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active rules of one collection in priority order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, err := parseKind(kindFlag)
			if err != nil {
				return err
			}

			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rules, err := store.GetActiveRules(cmd.Context(), kind)
			if err != nil {
				return err
			}

			fmt.Println(titleStyle.Render(fmt.Sprintf("Assignment rules (%s)", kind)))
			if len(rules) == 0 {
				fmt.Println(subtleStyle.Render("  no active rules"))
				return nil
			}

			fmt.Println(headerStyle.Render(fmt.Sprintf("%-4s %-6s %-30s %-20s %s", "PRI", "ID", "NAME", "TARGET", "KEYWORDS")))
			for _, r := range rules {
				keywords := strings.Join(r.IncludeKeywords, ",")
				if len(r.ExcludeKeywords) > 0 {
					keywords += " -" + strings.Join(r.ExcludeKeywords, ",-")
				}
				fmt.Printf("%-4d %-6d %-30s %-20s %s\n", r.Priority, r.ID, r.Name, r.Target, keywords)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kindFlag, "kind", "", "rule collection (user, farm, module)")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func rulesAddCmd() *cobra.Command {
	var (
		kindFlag    string
		name        string
		description string
		target      string
		include     []string
		exclude     []string
		taxEntity   string
		farmID      string
		module      string
		direction   string
		inactive    bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a rule at the end of its collection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, err := parseKind(kindFlag)
			if err != nil {
				return err
			}

			rule := &model.AssignmentRule{
				Kind:            kind,
				Name:            name,
				Description:     description,
				Target:          target,
				IncludeKeywords: include,
				ExcludeKeywords: exclude,
				IsActive:        !inactive,
			}
			if taxEntity != "" {
				rule.TaxEntityID = &taxEntity
			}
			if farmID != "" {
				rule.FarmID = &farmID
			}
			if module != "" {
				m := model.ModuleType(module)
				rule.Module = &m
			}
			if direction != "" {
				d := model.InvoiceDirection(direction)
				rule.Direction = &d
			}

			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.CreateRule(cmd.Context(), rule); err != nil {
				return err
			}

			fmt.Println(successStyle.Render(
				fmt.Sprintf("Created rule %d %q at priority %d", rule.ID, rule.Name, rule.Priority)))
			return nil
		},
	}

	cmd.Flags().StringVar(&kindFlag, "kind", "", "rule collection (user, farm, module)")
	cmd.Flags().StringVar(&name, "name", "", "rule name")
	cmd.Flags().StringVar(&description, "description", "", "rule description")
	cmd.Flags().StringVar(&target, "target", "", "assignment target (user id, farm id or module)")
	cmd.Flags().StringSliceVar(&include, "include", nil, "include keywords (any must match)")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "exclude keywords (none may match)")
	cmd.Flags().StringVar(&taxEntity, "tax-entity", "", "scope to a tax business entity")
	cmd.Flags().StringVar(&farmID, "farm", "", "scope to a farm")
	cmd.Flags().StringVar(&module, "module", "", "scope to an accounting module")
	cmd.Flags().StringVar(&direction, "direction", "", "scope to an invoice direction (purchase, sales)")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "create the rule disabled")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func rulesUpdateCmd() *cobra.Command {
	var (
		name           string
		description    string
		target         string
		include        []string
		exclude        []string
		taxEntity      string
		farmID         string
		module         string
		direction      string
		active         bool
		inactive       bool
		clearTaxEntity bool
		clearFarm      bool
		clearModule    bool
		clearDirection bool
	)

	cmd := &cobra.Command{
		Use:   "update <rule-id>",
		Short: "Partially update a rule",
		Long: `Update only the flags you pass; everything else is left unchanged.
Clearing a scoping filter is an explicit action (--clear-*), distinct from
simply omitting the flag.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid rule id %q", args[0])
			}

			var patch model.RulePatch
			if cmd.Flags().Changed("name") {
				patch.Name = &name
			}
			if cmd.Flags().Changed("description") {
				patch.Description = &description
			}
			if cmd.Flags().Changed("target") {
				patch.Target = &target
			}
			if cmd.Flags().Changed("include") {
				patch.IncludeKeywords = &include
			}
			if cmd.Flags().Changed("exclude") {
				patch.ExcludeKeywords = &exclude
			}
			switch {
			case active && inactive:
				return fmt.Errorf("--active and --inactive are mutually exclusive")
			case active:
				v := true
				patch.IsActive = &v
			case inactive:
				v := false
				patch.IsActive = &v
			}

			switch {
			case clearTaxEntity:
				patch.TaxEntityID = model.ClearField[string]()
			case cmd.Flags().Changed("tax-entity"):
				patch.TaxEntityID = model.SetField(taxEntity)
			}
			switch {
			case clearFarm:
				patch.FarmID = model.ClearField[string]()
			case cmd.Flags().Changed("farm"):
				patch.FarmID = model.SetField(farmID)
			}
			switch {
			case clearModule:
				patch.Module = model.ClearField[model.ModuleType]()
			case cmd.Flags().Changed("module"):
				patch.Module = model.SetField(model.ModuleType(module))
			}
			switch {
			case clearDirection:
				patch.Direction = model.ClearField[model.InvoiceDirection]()
			case cmd.Flags().Changed("direction"):
				patch.Direction = model.SetField(model.InvoiceDirection(direction))
			}

			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rule, err := store.UpdateRule(cmd.Context(), id, patch)
			if err != nil {
				return err
			}

			fmt.Println(successStyle.Render(fmt.Sprintf("Updated rule %d %q", rule.ID, rule.Name)))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "rule name")
	cmd.Flags().StringVar(&description, "description", "", "rule description")
	cmd.Flags().StringVar(&target, "target", "", "assignment target")
	cmd.Flags().StringSliceVar(&include, "include", nil, "include keywords")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "exclude keywords")
	cmd.Flags().StringVar(&taxEntity, "tax-entity", "", "scope to a tax business entity")
	cmd.Flags().StringVar(&farmID, "farm", "", "scope to a farm")
	cmd.Flags().StringVar(&module, "module", "", "scope to an accounting module")
	cmd.Flags().StringVar(&direction, "direction", "", "scope to an invoice direction")
	cmd.Flags().BoolVar(&active, "active", false, "enable the rule")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "disable the rule")
	cmd.Flags().BoolVar(&clearTaxEntity, "clear-tax-entity", false, "remove the tax entity filter")
	cmd.Flags().BoolVar(&clearFarm, "clear-farm", false, "remove the farm filter")
	cmd.Flags().BoolVar(&clearModule, "clear-module", false, "remove the module filter")
	cmd.Flags().BoolVar(&clearDirection, "clear-direction", false, "remove the direction filter")
	return cmd
}

func rulesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <rule-id>",
		Short: "Soft-delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid rule id %q", args[0])
			}

			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.DeleteRule(cmd.Context(), id); err != nil {
				return err
			}

			fmt.Println(successStyle.Render(fmt.Sprintf("Deleted rule %d", id)))
			return nil
		},
	}
}

func rulesReorderCmd() *cobra.Command {
	var kindFlag string

	cmd := &cobra.Command{
		Use:   "reorder <rule-id>...",
		Short: "Renumber a collection to the given id order",
		Long: `Rewrites priorities to the dense sequence 1..N following the id order
given on the command line. Ids that no longer exist are skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(kindFlag)
			if err != nil {
				return err
			}

			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid rule id %q", arg)
				}
				ids = append(ids, id)
			}

			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.ReorderRules(cmd.Context(), kind, ids); err != nil {
				return err
			}

			fmt.Println(successStyle.Render(fmt.Sprintf("Reordered %s rules", kind)))
			return nil
		},
	}

	cmd.Flags().StringVar(&kindFlag, "kind", "", "rule collection (user, farm, module)")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}
