package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"opticash/internal/allocation"
	"opticash/internal/core"
	"opticash/internal/services"
	"opticash/internal/store"
	"opticash/internal/view"
)

const usage = `usage: opticash <command> [flags]

commands:
  allocate     split a bill among its household members
  view         show a member's contributions
  pay          pay a member contribution
  offline-pay  record a payment locally and queue it
  reconcile    drop local payments the store already confirmed
  settle       submit locally recorded payments
  export       export a member's view to Google Sheets
`

var errUsage = errors.New("invalid usage")

type viewExporter interface {
	ExportView(ctx context.Context, v view.View) (string, error)
}

type app struct {
	store         store.Store
	contributions *services.ContributionService
	payments      *services.PaymentService
	loader        *view.Loader
	exporter      viewExporter
	out           io.Writer
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "allocate":
		return a.allocate(ctx, rest)
	case "view":
		return a.view(ctx, rest)
	case "pay":
		return a.pay(ctx, rest)
	case "offline-pay":
		return a.offlinePay(ctx, rest)
	case "reconcile":
		return a.reconcile(ctx, rest)
	case "settle":
		return a.settle(ctx, rest)
	case "export":
		return a.export(ctx, rest)
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	default:
		fmt.Fprint(a.out, usage)
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func required(fs *flag.FlagSet, names ...string) error {
	for _, name := range names {
		if fs.Lookup(name).Value.String() == "" {
			return fmt.Errorf("%w: %s requires -%s", errUsage, fs.Name(), name)
		}
	}
	return nil
}

func (a *app) allocate(ctx context.Context, args []string) error {
	fs := newFlagSet("allocate", a.out)
	billID := fs.String("bill", "", "bill ID")
	strategy := fs.String("strategy", string(core.StrategyEqual), fmt.Sprintf("splitting strategy %v", allocation.Tags()))
	description := fs.String("description", "", "contribution description (defaults to the bill's)")
	due := fs.String("due", "", "due date, YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "bill"); err != nil {
		return err
	}

	req := services.ContributionRequest{
		BillID:      *billID,
		Description: *description,
		Strategy:    core.StrategyTag(*strategy),
	}
	if *due != "" {
		d, err := time.Parse("2006-01-02", *due)
		if err != nil {
			return fmt.Errorf("%w: due date: %v", errUsage, err)
		}
		req.DueDate = d
	}

	res, err := a.contributions.CreateContribution(ctx, req)
	var perr *services.PartialBatchError
	if errors.As(err, &perr) {
		res, err = a.contributions.RetryFailed(ctx, perr)
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "contribution\t%s\t%s\n", res.Contribution.ID, res.Contribution.Strategy)
	for _, r := range res.Records {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.ID, r.MemberID, r.Amount)
	}
	fmt.Fprintf(w, "unassigned\t\t%s\n", res.Unassigned)
	return w.Flush()
}

func (a *app) view(ctx context.Context, args []string) error {
	fs := newFlagSet("view", a.out)
	household := fs.String("household", "", "household ID")
	member := fs.String("member", "", "member ID")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "household", "member"); err != nil {
		return err
	}

	v, err := a.loader.Load(ctx, *household, *member)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCONTRIBUTION\tBILL\tDUE\tAMOUNT\tREMAINING\tSTATUS")
	for _, s := range v.Shares {
		bill := "-"
		if s.Bill != nil {
			bill = s.Bill.Description
		}
		due := "-"
		if !s.DueDate.IsZero() {
			due = s.DueDate.Format("2006-01-02")
		}
		status := string(s.Status)
		if s.Optimistic {
			status += " (local)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.MemberContributionID, s.ContributionDescription, bill, due, s.Original, s.Remaining, status)
	}
	fmt.Fprintf(w, "\t\t\t\tpending\t%s\t\n", v.TotalPending)
	fmt.Fprintf(w, "\t\t\t\tpaid\t%s\t\n", v.TotalPaid)
	return w.Flush()
}

func (a *app) pay(ctx context.Context, args []string) error {
	fs := newFlagSet("pay", a.out)
	id := fs.String("id", "", "member contribution ID")
	amount := fs.String("amount", "", "amount paid, e.g. 33.34")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "id", "amount"); err != nil {
		return err
	}
	m, err := core.ParseMoney(*amount)
	if err != nil {
		return fmt.Errorf("amount %q: %w", *amount, err)
	}

	paid, err := a.payments.Pay(ctx, *id, m)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "paid %s %s at %s\n", paid.ID, paid.Amount, paid.PaidAt.Format(time.RFC3339))
	return nil
}

func (a *app) offlinePay(ctx context.Context, args []string) error {
	fs := newFlagSet("offline-pay", a.out)
	household := fs.String("household", "", "household ID")
	member := fs.String("member", "", "member ID")
	id := fs.String("id", "", "member contribution ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "member", "id"); err != nil {
		return err
	}

	records, err := a.store.ListMemberContributions(ctx, *member)
	if err != nil {
		return &core.RemoteFetchError{Resource: view.ResourceMemberContributions, Err: err}
	}
	for _, mc := range records {
		if mc.ID != *id {
			continue
		}
		entry, err := a.payments.RecordOffline(ctx, *household, mc)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "recorded %s %s locally\n", mc.ID, entry.OriginalAmount)
		return nil
	}
	return fmt.Errorf("member contribution %s of member %s: %w", *id, *member, store.ErrNotFound)
}

func (a *app) reconcile(ctx context.Context, args []string) error {
	fs := newFlagSet("reconcile", a.out)
	member := fs.String("member", "", "member ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "member"); err != nil {
		return err
	}
	n, err := a.payments.Reconcile(ctx, *member)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "retired %d local payments\n", n)
	return nil
}

func (a *app) settle(ctx context.Context, args []string) error {
	fs := newFlagSet("settle", a.out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	n, err := a.payments.SubmitPending(ctx)
	fmt.Fprintf(a.out, "settled %d local payments\n", n)
	return err
}

func (a *app) export(ctx context.Context, args []string) error {
	fs := newFlagSet("export", a.out)
	household := fs.String("household", "", "household ID")
	member := fs.String("member", "", "member ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "household", "member"); err != nil {
		return err
	}
	if a.exporter == nil {
		return errors.New("export: GOOGLE_SPREADSHEET_ID is not configured")
	}

	v, err := a.loader.Load(ctx, *household, *member)
	if err != nil {
		return err
	}
	rng, err := a.exporter.ExportView(ctx, v)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "exported %d shares to %s\n", len(v.Shares), rng)
	return nil
}
