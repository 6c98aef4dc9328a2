package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"owlmoney/internal/account"
	"owlmoney/internal/core"
	applog "owlmoney/internal/log"
	"owlmoney/internal/recurring"
)

// Commands returns every owlmoney subcommand bound to env.
func Commands(env *Env) []subcommands.Command {
	return []subcommands.Command{
		&statusCmd{env: env},
		&historyCmd{env: env},
		&findCmd{env: env},
		&payBillCmd{env: env},
		&unpayBillCmd{env: env},
		&addAccountCmd{env: env},
		&addCardCmd{env: env},
		&addRecurringCmd{env: env},
		&spendCmd{env: env},
		&depositCmd{env: env},
		&editCmd{env: env},
		&deleteCmd{env: env},
		&editCardCmd{env: env},
		&recurringCmd{env: env},
		&editRecurringCmd{env: env},
		&deleteRecurringCmd{env: env},
		&renameCmd{env: env},
		&removeCmd{env: env},
	}
}

// Register adds the commands to c, grouped like the help output.
func Register(c *subcommands.Commander, env *Env) {
	for _, cmd := range Commands(env) {
		group := "ledger"
		switch cmd.(type) {
		case *statusCmd, *historyCmd, *findCmd, *recurringCmd:
			group = "reports"
		case *addAccountCmd, *addCardCmd, *addRecurringCmd, *editCardCmd, *editRecurringCmd,
			*deleteRecurringCmd, *renameCmd, *removeCmd:
			group = "setup"
		}
		c.Register(cmd, group)
	}
}

// run opens the profile, brings every account up to date, runs fn and
// saves the profile back. Reconciliation mutates the profile, so even
// read-only commands save.
func (e *Env) run(ctx context.Context, fn func(*Session) error) subcommands.ExitStatus {
	s, err := e.Open(ctx)
	if err != nil {
		fmt.Fprintf(e.Out, "error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer s.Close()

	s.reconcile(ctx)
	runErr := fn(s)
	s.Save(ctx)
	if runErr != nil {
		fmt.Fprintf(e.Out, "error: %v\n", runErr)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (s *Session) reconcile(ctx context.Context) {
	for _, a := range s.Profile.Accounts() {
		rec, err := a.ReconcileToNow()
		if err != nil {
			fmt.Fprintf(s.env.Out, "warning: %s: %v\n", a.Name(), err)
		}
		if rec.IncomePosted > 0 || rec.Recurring.Materialized > 0 {
			fields := applog.NewFields().WithOperation(applog.OpReconcile)
			fields[applog.FieldAccount] = a.Name()
			fields["income_posted"] = rec.IncomePosted
			fields["recurring_posted"] = rec.Recurring.Materialized
			s.env.Logger.LogFields(ctx, slog.LevelInfo, "Account reconciled", fields)
		}
		if msg := rec.IncomeWarning(); msg != "" {
			fmt.Fprintf(s.env.Out, "warning: %s: %s\n", a.Name(), msg)
		}
		for _, w := range rec.Warnings() {
			fmt.Fprintf(s.env.Out, "warning: %s: %s\n", a.Name(), w)
		}
	}
}

func (s *Session) today() core.Date { return s.Profile.Clock().Today() }

func usage(out io.Writer, err error) subcommands.ExitStatus {
	fmt.Fprintf(out, "error: %v\n", err)
	return subcommands.ExitUsageError
}

type statusCmd struct {
	env *Env
}

func (*statusCmd) Name() string     { return "status" }
func (*statusCmd) Synopsis() string { return "show balances, income and card limits" }
func (*statusCmd) Usage() string {
	return `owlmoney status

  Brings every account up to date and prints accounts and cards.
`
}
func (*statusCmd) SetFlags(*flag.FlagSet) {}

func (c *statusCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.env.run(ctx, func(s *Session) error {
		w := tabwriter.NewWriter(s.env.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ACCOUNT\tKIND\tBALANCE\tINCOME\tNEXT INCOME\tRECURRING\tMONTH IN\tMONTH OUT")
		for _, a := range s.Profile.Accounts() {
			sum, err := a.Summary()
			if err != nil {
				return err
			}
			income, next := "-", "-"
			if sum.HasIncome {
				income, next = sum.Income.String(), sum.NextIncome.StorageString()
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				sum.Name, sum.Kind, sum.Balance, income, next, sum.Recurring,
				sum.Month.Deposits, sum.Month.Expenditures)
		}
		if len(s.Profile.Cards()) > 0 {
			ym := s.today().YearMonth()
			fmt.Fprintln(w)
			fmt.Fprintln(w, "CARD\tLIMIT\tREMAINING\tUNPAID\tREBATE %")
			for _, card := range s.Profile.Cards() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					card.Name(), card.Limit(), card.RemainingLimitNow(), card.TotalUnpaid(ym), card.Rebate())
			}
		}
		return w.Flush()
	})
}

type historyCmd struct {
	env  *Env
	name string
	n    int
	kind string
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "list recent transactions of an account or card" }
func (*historyCmd) Usage() string {
	return `owlmoney history -of <name> [-n 10] [-type any|deposit|expenditure]

  Lists the most recent transactions, newest first. For a card, paid and
  unpaid expenditures are listed separately.
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "of", "", "Account or card name")
	f.IntVar(&c.n, "n", 10, "Number of transactions to list")
	f.StringVar(&c.kind, "type", "any", "Transaction type: any, deposit or expenditure")
}

func parseDirection(s string) (core.Direction, error) {
	switch strings.ToLower(s) {
	case "", "any":
		return core.AnyDirection, nil
	case "deposit", "deposits":
		return core.Deposits, nil
	case "expenditure", "expenditures":
		return core.Expenditures, nil
	}
	return 0, fmt.Errorf("%w: unknown transaction type %q", core.ErrValidation, s)
}

func (c *historyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.name == "" {
		return usage(c.env.Out, errors.New("-of is required"))
	}
	dir, err := parseDirection(c.kind)
	if err != nil {
		return usage(c.env.Out, err)
	}
	return c.env.run(ctx, func(s *Session) error {
		w := tabwriter.NewWriter(s.env.Out, 0, 4, 2, ' ', 0)
		if a, err := s.Profile.Account(c.name); err == nil {
			seq, err := a.ListTransactions(c.n, dir)
			if err != nil {
				return err
			}
			printTransactions(w, seq, true)
			return w.Flush()
		}
		card, err := s.Profile.Card(c.name)
		if err != nil {
			return err
		}
		paid, unpaid, err := card.ListExpenditures(c.n)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "UNPAID")
		printTransactions(w, unpaid, false)
		fmt.Fprintln(w, "\nPAID")
		printTransactions(w, paid, false)
		return w.Flush()
	})
}

func printTransactions(w *tabwriter.Writer, seq iter.Seq2[int, core.Transaction], signed bool) {
	fmt.Fprintln(w, "#\tDATE\tDESCRIPTION\tCATEGORY\tAMOUNT")
	for i, tx := range seq {
		amount := tx.Amount
		if signed {
			amount = tx.Signed()
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i, tx.Date.StorageString(), tx.Description, tx.Category, amount)
	}
}

type findCmd struct {
	env      *Env
	name     string
	from     string
	to       string
	desc     string
	category string
}

func (*findCmd) Name() string     { return "find" }
func (*findCmd) Synopsis() string { return "search an account or card by date, description and category" }
func (*findCmd) Usage() string {
	return `owlmoney find -of <name> [-from dd/MM/yyyy] [-to dd/MM/yyyy] [-desc text] [-category text]

  Dates are inclusive; text matches are case-insensitive substrings.
`
}

func (c *findCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "of", "", "Account or card name")
	f.StringVar(&c.from, "from", "", "First date, dd/MM/yyyy")
	f.StringVar(&c.to, "to", "", "Last date, dd/MM/yyyy")
	f.StringVar(&c.desc, "desc", "", "Description contains")
	f.StringVar(&c.category, "category", "", "Category contains")
}

func (c *findCmd) query() (core.Query, error) {
	q := core.Query{Description: c.desc, Category: c.category}
	var err error
	if c.from != "" {
		if q.From, err = core.ParseDate(c.from); err != nil {
			return q, fmt.Errorf("from: %w", err)
		}
	}
	if c.to != "" {
		if q.To, err = core.ParseDate(c.to); err != nil {
			return q, fmt.Errorf("to: %w", err)
		}
	}
	return q, nil
}

func (c *findCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.name == "" {
		return usage(c.env.Out, errors.New("-of is required"))
	}
	q, err := c.query()
	if err != nil {
		return usage(c.env.Out, err)
	}
	return c.env.run(ctx, func(s *Session) error {
		w := tabwriter.NewWriter(s.env.Out, 0, 4, 2, ' ', 0)
		if a, err := s.Profile.Account(c.name); err == nil {
			found, err := a.FindTransactions(q)
			if err != nil {
				return err
			}
			printTransactions(w, entries(found), true)
			return w.Flush()
		}
		card, err := s.Profile.Card(c.name)
		if err != nil {
			return err
		}
		paid, unpaid, err := card.Find(q)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "UNPAID")
		printTransactions(w, entries(unpaid), false)
		fmt.Fprintln(w, "\nPAID")
		printTransactions(w, entries(paid), false)
		return w.Flush()
	})
}

func entries(found []core.Entry) iter.Seq2[int, core.Transaction] {
	return func(yield func(int, core.Transaction) bool) {
		for _, e := range found {
			if !yield(e.Index, e.Transaction) {
				return
			}
		}
	}
}

// billFlags are shared by paybill and unpaybill.
type billFlags struct {
	card    string
	account string
	month   string
}

func (b *billFlags) set(f *flag.FlagSet) {
	f.StringVar(&b.card, "card", "", "Card name")
	f.StringVar(&b.account, "account", "", "Account the bill is paid from")
	f.StringVar(&b.month, "month", "", "Bill month as yyyy-MM (defaults to last month)")
}

func (b *billFlags) check() error {
	if b.card == "" || b.account == "" {
		return errors.New("-card and -account are required")
	}
	return nil
}

func (b *billFlags) yearMonth(today core.Date) (core.YearMonth, error) {
	if b.month == "" {
		return today.YearMonth().First().AddMonthsClamped(-1, 1).YearMonth(), nil
	}
	return core.ParseYearMonth(b.month)
}

type payBillCmd struct {
	env *Env
	billFlags
}

func (*payBillCmd) Name() string     { return "paybill" }
func (*payBillCmd) Synopsis() string { return "pay a card's monthly bill from an account" }
func (*payBillCmd) Usage() string {
	return `owlmoney paybill -card <card> -account <account> [-month yyyy-MM]

  Debits the card's unpaid total for the month, credits the rebate and
  marks the month paid on the card.
`
}
func (c *payBillCmd) SetFlags(f *flag.FlagSet) { c.billFlags.set(f) }

func (c *payBillCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.check(); err != nil {
		return usage(c.env.Out, err)
	}
	return c.env.run(ctx, func(s *Session) error {
		ym, err := c.yearMonth(s.today())
		if err != nil {
			return err
		}
		bill, err := s.Profile.PayCardBill(c.card, c.account, ym)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.env.Out, "paid %s bill of %s from %s: %s (rebate %s, %d expenditures settled)\n",
			bill.Month, bill.Card, bill.Account, bill.Amount, bill.Rebate, bill.Moved)
		return nil
	})
}

type unpayBillCmd struct {
	env *Env
	billFlags
}

func (*unpayBillCmd) Name() string     { return "unpaybill" }
func (*unpayBillCmd) Synopsis() string { return "reverse a paid card bill" }
func (*unpayBillCmd) Usage() string {
	return `owlmoney unpaybill -card <card> -account <account> [-month yyyy-MM]

  Removes both bill transactions from the account and moves the month's
  expenditures back to unpaid.
`
}
func (c *unpayBillCmd) SetFlags(f *flag.FlagSet) { c.billFlags.set(f) }

func (c *unpayBillCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.check(); err != nil {
		return usage(c.env.Out, err)
	}
	return c.env.run(ctx, func(s *Session) error {
		ym, err := c.yearMonth(s.today())
		if err != nil {
			return err
		}
		bill, err := s.Profile.ReverseCardBill(c.card, c.account, ym)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.env.Out, "reversed %s bill of %s from %s: %s returned, %d expenditures unpaid again\n",
			bill.Month, bill.Card, bill.Account, bill.Amount, bill.Moved)
		return nil
	})
}

type addAccountCmd struct {
	env     *Env
	name    string
	kind    string
	balance string
	income  string
	next    string
}

func (*addAccountCmd) Name() string     { return "addaccount" }
func (*addAccountCmd) Synopsis() string { return "create a saving or current account" }
func (*addAccountCmd) Usage() string {
	return `owlmoney addaccount -name <name> [-kind saving|current] [-balance 0.00] [-income <amount> -next dd/MM/yyyy]
`
}

func (c *addAccountCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "Account name")
	f.StringVar(&c.kind, "kind", "current", "Account kind: saving or current")
	f.StringVar(&c.balance, "balance", "0", "Opening balance")
	f.StringVar(&c.income, "income", "", "Monthly income (saving accounts)")
	f.StringVar(&c.next, "next", "", "Next income date, dd/MM/yyyy")
}

func (c *addAccountCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	kind, err := account.ParseKind(c.kind)
	if err != nil {
		return usage(c.env.Out, err)
	}
	balance, err := core.ParseStoredMoney(c.balance)
	if err != nil {
		return usage(c.env.Out, fmt.Errorf("balance: %w", err))
	}
	return c.env.run(ctx, func(s *Session) error {
		if kind == account.Current {
			_, err := s.Profile.AddCurrent(c.name, balance)
			return err
		}
		income, err := core.ParseMoney(c.income)
		if err != nil {
			return fmt.Errorf("income: %w", err)
		}
		next, err := core.ParseDate(c.next)
		if err != nil {
			return fmt.Errorf("next income date: %w", err)
		}
		_, err = s.Profile.AddSaving(c.name, balance, income, next)
		return err
	})
}

type addCardCmd struct {
	env    *Env
	name   string
	limit  string
	rebate string
}

func (*addCardCmd) Name() string     { return "addcard" }
func (*addCardCmd) Synopsis() string { return "create a credit card" }
func (*addCardCmd) Usage() string {
	return `owlmoney addcard -name <name> -limit <amount> [-rebate <percent>]
`
}

func (c *addCardCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "Card name")
	f.StringVar(&c.limit, "limit", "", "Monthly spending limit")
	f.StringVar(&c.rebate, "rebate", "0", "Cash back percentage")
}

func (c *addCardCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	limit, err := core.ParseMoney(c.limit)
	if err != nil {
		return usage(c.env.Out, fmt.Errorf("limit: %w", err))
	}
	rebate, err := decimal.NewFromString(c.rebate)
	if err != nil {
		return usage(c.env.Out, fmt.Errorf("rebate: %w", err))
	}
	return c.env.run(ctx, func(s *Session) error {
		card, err := s.Profile.AddCard(c.name, limit, rebate, uuid.Nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.env.Out, "card %s created with id %s\n", card.Name(), card.ID())
		return nil
	})
}

type addRecurringCmd struct {
	env      *Env
	account  string
	desc     string
	amount   string
	first    string
	category string
}

func (*addRecurringCmd) Name() string     { return "addrecurring" }
func (*addRecurringCmd) Synopsis() string { return "schedule a monthly expenditure on a saving account" }
func (*addRecurringCmd) Usage() string {
	return `owlmoney addrecurring -account <name> -desc <text> -amount <amount> -first dd/MM/yyyy -category <name>
`
}

func (c *addRecurringCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "Saving account name")
	f.StringVar(&c.desc, "desc", "", "Description")
	f.StringVar(&c.amount, "amount", "", "Monthly amount")
	f.StringVar(&c.first, "first", "", "First due date, dd/MM/yyyy")
	f.StringVar(&c.category, "category", "", "Category")
}

func (c *addRecurringCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	amount, err := core.ParseMoney(c.amount)
	if err != nil {
		return usage(c.env.Out, fmt.Errorf("amount: %w", err))
	}
	first, err := core.ParseDate(c.first)
	if err != nil {
		return usage(c.env.Out, fmt.Errorf("first due date: %w", err))
	}
	return c.env.run(ctx, func(s *Session) error {
		a, err := s.Profile.Account(c.account)
		if err != nil {
			return err
		}
		if err := a.AddRecurring(recurring.NewTemplate(c.desc, amount, first, c.category)); err != nil {
			return err
		}
		// Templates already due are posted right away.
		rec, err := a.ReconcileToNow()
		if msg := rec.IncomeWarning(); msg != "" {
			fmt.Fprintf(s.env.Out, "warning: %s: %s\n", a.Name(), msg)
		}
		for _, w := range rec.Warnings() {
			fmt.Fprintf(s.env.Out, "warning: %s: %s\n", a.Name(), w)
		}
		return err
	})
}

// txFlags are shared by spend and deposit.
type txFlags struct {
	target   string
	desc     string
	amount   string
	date     string
	category string
}

func (t *txFlags) set(f *flag.FlagSet, target string) {
	f.StringVar(&t.target, target, "", "Account or card name")
	f.StringVar(&t.desc, "desc", "", "Description")
	f.StringVar(&t.amount, "amount", "", "Amount")
	f.StringVar(&t.date, "date", "", "Date, dd/MM/yyyy (defaults to today)")
	f.StringVar(&t.category, "category", "", "Category")
}

func (t *txFlags) parse(today core.Date) (core.Money, core.Date, error) {
	amount, err := core.ParseMoney(t.amount)
	if err != nil {
		return core.Money{}, core.Date{}, fmt.Errorf("amount: %w", err)
	}
	if t.date == "" {
		return amount, today, nil
	}
	date, err := core.ParseDate(t.date)
	if err != nil {
		return core.Money{}, core.Date{}, fmt.Errorf("date: %w", err)
	}
	return amount, date, nil
}

type spendCmd struct {
	env *Env
	txFlags
}

func (*spendCmd) Name() string     { return "spend" }
func (*spendCmd) Synopsis() string { return "record an expenditure on an account or card" }
func (*spendCmd) Usage() string {
	return `owlmoney spend -from <name> -desc <text> -amount <amount> -category <name> [-date dd/MM/yyyy]
`
}
func (c *spendCmd) SetFlags(f *flag.FlagSet) { c.txFlags.set(f, "from") }

func (c *spendCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.env.run(ctx, func(s *Session) error {
		amount, date, err := c.parse(s.today())
		if err != nil {
			return err
		}
		tx := core.NewExpenditure(c.desc, amount, date, c.category)
		if a, err := s.Profile.Account(c.target); err == nil {
			return a.PostExpenditure(tx)
		}
		card, err := s.Profile.Card(c.target)
		if err != nil {
			return err
		}
		return card.PostExpenditure(tx)
	})
}

type depositCmd struct {
	env *Env
	txFlags
}

func (*depositCmd) Name() string     { return "deposit" }
func (*depositCmd) Synopsis() string { return "record a deposit on an account" }
func (*depositCmd) Usage() string {
	return `owlmoney deposit -to <account> -desc <text> -amount <amount> -category <name> [-date dd/MM/yyyy]
`
}
func (c *depositCmd) SetFlags(f *flag.FlagSet) { c.txFlags.set(f, "to") }

func (c *depositCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.env.run(ctx, func(s *Session) error {
		amount, date, err := c.parse(s.today())
		if err != nil {
			return err
		}
		a, err := s.Profile.Account(c.target)
		if err != nil {
			return err
		}
		return a.PostDeposit(core.NewDeposit(c.desc, amount, date, c.category))
	})
}

type renameCmd struct {
	env  *Env
	from string
	to   string
}

func (*renameCmd) Name() string     { return "rename" }
func (*renameCmd) Synopsis() string { return "rename an account or card" }
func (*renameCmd) Usage() string {
	return `owlmoney rename -from <name> -to <name>
`
}

func (c *renameCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.from, "from", "", "Current name")
	f.StringVar(&c.to, "to", "", "New name")
}

func (c *renameCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.env.run(ctx, func(s *Session) error {
		if err := s.Profile.Rename(c.from, c.to); err != nil {
			return err
		}
		// The ledgers are saved under the new name; drop the old tables.
		s.Forget(ctx, c.from)
		return nil
	})
}

type removeCmd struct {
	env  *Env
	name string
}

func (*removeCmd) Name() string     { return "remove" }
func (*removeCmd) Synopsis() string { return "delete an account or card with its ledgers" }
func (*removeCmd) Usage() string {
	return `owlmoney remove -name <name>
`
}

func (c *removeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "Account or card name")
}

func (c *removeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.env.run(ctx, func(s *Session) error {
		err := s.Profile.RemoveAccount(c.name)
		if errors.Is(err, core.ErrNotFound) {
			err = s.Profile.RemoveCard(c.name)
		}
		if err != nil {
			return err
		}
		s.Forget(ctx, c.name)
		return nil
	})
}
