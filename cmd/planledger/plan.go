package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/chatforge/planledger/adapters/clock"
	"github.com/chatforge/planledger/adapters/metrics"
	"github.com/chatforge/planledger/adapters/sqlite"
	"github.com/chatforge/planledger/app"
	"github.com/chatforge/planledger/config"
	"github.com/chatforge/planledger/domain/entry"
	"github.com/chatforge/planledger/domain/plan"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage plan balances",
	Long: `Inspect and manage pay-as-you-go plan balances.

Examples:
  planledger plan show user 12345
  planledger plan create guild 67890 --seed 1.0
  planledger plan grant user 12345 --amount 5.0
  planledger plan charge user 12345 --category summarization --prompt-tokens 800 --completion-tokens 200
  planledger plan list user`,
}

var planShowCmd = &cobra.Command{
	Use:   "show <kind> <id>",
	Short: "Show a plan balance",
	Args:  cobra.ExactArgs(2),
	RunE:  runPlanShow,
}

var planCreateCmd = &cobra.Command{
	Use:   "create <kind> <id>",
	Short: "Provision a plan for an entry",
	Args:  cobra.ExactArgs(2),
	RunE:  runPlanCreate,
}

var planGrantCmd = &cobra.Command{
	Use:   "grant <kind> <id>",
	Short: "Apply a credit to a plan",
	Args:  cobra.ExactArgs(2),
	RunE:  runPlanGrant,
}

var planChargeCmd = &cobra.Command{
	Use:   "charge <kind> <id>",
	Short: "Apply a priced usage expense to a plan",
	Args:  cobra.ExactArgs(2),
	RunE:  runPlanCharge,
}

var planListCmd = &cobra.Command{
	Use:   "list <kind>",
	Short: "List entries with their balances",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlanList,
}

var (
	planSeed float64

	grantAmount  float64
	grantType    string
	grantGateway string

	chargeCategory   string
	chargeModel      string
	chargeCost       float64
	chargeKudos      float64
	chargeCount      int
	chargeDurationMs int64
	chargePrompt     int64
	chargeCompletion int64
	chargeURL        string

	listLimit  int
	listOffset int
)

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.AddCommand(planShowCmd)
	planCmd.AddCommand(planCreateCmd)
	planCmd.AddCommand(planGrantCmd)
	planCmd.AddCommand(planChargeCmd)
	planCmd.AddCommand(planListCmd)

	planCreateCmd.Flags().Float64Var(&planSeed, "seed", 0, "initial credit total")

	planGrantCmd.Flags().Float64Var(&grantAmount, "amount", 0, "credit amount (required)")
	planGrantCmd.Flags().StringVar(&grantType, "type", "grant", "credit type: web or grant")
	planGrantCmd.Flags().StringVar(&grantGateway, "gateway", "", "payment gateway reference")
	planGrantCmd.MarkFlagRequired("amount")

	planChargeCmd.Flags().StringVar(&chargeCategory, "category", "", "usage category (required)")
	planChargeCmd.Flags().StringVar(&chargeModel, "model", "", "model name (conversational, video)")
	planChargeCmd.Flags().Float64Var(&chargeCost, "cost", 0, "pre-computed cost (conversational)")
	planChargeCmd.Flags().Float64Var(&chargeKudos, "kudos", 0, "kudos spent (community image)")
	planChargeCmd.Flags().IntVar(&chargeCount, "count", 0, "image count (external image)")
	planChargeCmd.Flags().Int64Var(&chargeDurationMs, "duration-ms", 0, "media duration in ms (image description, video)")
	planChargeCmd.Flags().Int64Var(&chargePrompt, "prompt-tokens", 0, "prompt tokens (summarization)")
	planChargeCmd.Flags().Int64Var(&chargeCompletion, "completion-tokens", 0, "completion tokens (summarization)")
	planChargeCmd.Flags().StringVar(&chargeURL, "url", "", "source url (summarization)")
	planChargeCmd.MarkFlagRequired("category")

	planListCmd.Flags().IntVar(&listLimit, "limit", 50, "maximum entries to list")
	planListCmd.Flags().IntVar(&listOffset, "offset", 0, "entries to skip")
}

// openLedger opens the configured database and builds a ledger service
// for one-shot CLI operations.
func openLedger() (*app.LedgerService, *sqlite.DB, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database.Driver != "sqlite" {
		return nil, nil, fmt.Errorf("plan commands need a sqlite database, driver is %q", cfg.Database.Driver)
	}

	db, err := sqlite.Open(cfg.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	rates := cfg.Pricing.Rates(cfg.Ledger.MaxExpenseHistory)
	svc := app.NewLedgerService(sqlite.NewEntryStore(db), clock.Real{}, metrics.Noop{}, rates, zerolog.Nop())
	return svc, db, nil
}

func parseKindArg(arg string) (entry.Kind, error) {
	k := entry.Kind(arg)
	if !k.IsValid() {
		return "", fmt.Errorf("kind must be user or guild, got %q", arg)
	}
	return k, nil
}

func refFromArgs(args []string) (entry.Ref, error) {
	k, err := parseKindArg(args[0])
	if err != nil {
		return entry.Ref{}, err
	}
	return entry.Ref{Kind: k, ID: args[1]}, nil
}

func runPlanShow(cmd *cobra.Command, args []string) error {
	ref, err := refFromArgs(args)
	if err != nil {
		return err
	}

	svc, db, err := openLedger()
	if err != nil {
		return err
	}
	defer db.Close()

	p, err := svc.GetPlan(context.Background(), ref)
	if err != nil {
		return err
	}
	if p == nil {
		fmt.Printf("No plan for %s %s.\n", ref.Kind, ref.ID)
		return nil
	}

	printPlan(ref, *p)
	return nil
}

func printPlan(ref entry.Ref, p plan.Plan) {
	fmt.Printf("Entry:      %s %s\n", ref.Kind, ref.ID)
	fmt.Printf("Total:      %.6f\n", p.Total)
	fmt.Printf("Used:       %.6f\n", p.Used)
	fmt.Printf("Remaining:  %.6f\n", p.Remaining())
	fmt.Printf("Exhausted:  %v\n", p.IsExhausted())
	fmt.Printf("Expenses:   %d\n", len(p.Expenses))
	fmt.Printf("Credits:    %d\n", len(p.History))

	if len(p.Expenses) > 0 {
		fmt.Println("\nRecent expenses:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  TIME\tCATEGORY\tUSED")
		for _, e := range plan.RecentExpenses(p, 5) {
			fmt.Fprintf(w, "  %s\t%s\t%.6f\n", e.Time.Format("2006-01-02 15:04:05"), e.Type, e.Used)
		}
		w.Flush()
	}
}

func runPlanCreate(cmd *cobra.Command, args []string) error {
	ref, err := refFromArgs(args)
	if err != nil {
		return err
	}

	svc, db, err := openLedger()
	if err != nil {
		return err
	}
	defer db.Close()

	p, err := svc.CreatePlan(context.Background(), ref, planSeed)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}

	fmt.Printf("%s Plan for %s %s (total %.6f)\n", checkMark, ref.Kind, ref.ID, p.Total)
	return nil
}

func runPlanGrant(cmd *cobra.Command, args []string) error {
	ref, err := refFromArgs(args)
	if err != nil {
		return err
	}

	ct := plan.CreditType(grantType)
	if !ct.IsValid() {
		return fmt.Errorf("credit type must be web or grant, got %q", grantType)
	}

	svc, db, err := openLedger()
	if err != nil {
		return err
	}
	defer db.Close()

	c, err := svc.ApplyCredit(context.Background(), ref, ct, grantGateway, grantAmount)
	if err != nil {
		if err == app.ErrNotProvisioned {
			return fmt.Errorf("%s %s has no plan; run 'planledger plan create %s %s' first",
				ref.Kind, ref.ID, ref.Kind, ref.ID)
		}
		return fmt.Errorf("failed to apply credit: %w", err)
	}

	fmt.Printf("%s Credited %.6f (%s) to %s %s\n", checkMark, c.Amount, c.Type, ref.Kind, ref.ID)
	return nil
}

func runPlanCharge(cmd *cobra.Command, args []string) error {
	ref, err := refFromArgs(args)
	if err != nil {
		return err
	}

	svc, db, err := openLedger()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()

	var exp *plan.Expense
	switch plan.Category(chargeCategory) {
	case plan.CategoryConversational:
		exp, err = svc.ChargeConversational(ctx, ref, chargeModel, chargeCost)
	case plan.CategoryCommunityImage:
		exp, err = svc.ChargeCommunityImage(ctx, ref, chargeKudos)
	case plan.CategoryExternalImage:
		exp, err = svc.ChargeExternalImage(ctx, ref, chargeCount)
	case plan.CategoryImageDescribe:
		exp, err = svc.ChargeImageDescription(ctx, ref, chargeDurationMs)
	case plan.CategoryVideo:
		exp, err = svc.ChargeVideoGeneration(ctx, ref, chargeModel, chargeDurationMs)
	case plan.CategorySummarization:
		exp, err = svc.ChargeSummarization(ctx, ref, chargePrompt, chargeCompletion, chargeURL)
	default:
		return fmt.Errorf("unknown category %q", chargeCategory)
	}
	if err != nil {
		return fmt.Errorf("failed to apply expense: %w", err)
	}
	if exp == nil {
		fmt.Printf("%s %s has no plan; nothing charged\n", ref.Kind, ref.ID)
		return nil
	}

	fmt.Printf("%s Charged %.6f (%s) to %s %s\n", checkMark, exp.Used, exp.Type, ref.Kind, ref.ID)
	return nil
}

func runPlanList(cmd *cobra.Command, args []string) error {
	kind, err := parseKindArg(args[0])
	if err != nil {
		return err
	}

	_, db, err := openLedger()
	if err != nil {
		return err
	}
	defer db.Close()

	store := sqlite.NewEntryStore(db)
	entries, err := store.List(context.Background(), kind, listLimit, listOffset)
	if err != nil {
		return fmt.Errorf("failed to list entries: %w", err)
	}

	if len(entries) == 0 {
		fmt.Printf("No %s entries found.\n", kind)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTOTAL\tUSED\tREMAINING\tEXHAUSTED")
	fmt.Fprintln(w, "--\t-----\t----\t---------\t---------")
	for _, e := range entries {
		if e.Plan == nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\n", e.Ref.ID)
			continue
		}
		fmt.Fprintf(w, "%s\t%.6f\t%.6f\t%.6f\t%v\n",
			e.Ref.ID, e.Plan.Total, e.Plan.Used, e.Plan.Remaining(), e.Plan.IsExhausted())
	}
	w.Flush()
	return nil
}
