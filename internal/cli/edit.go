package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"text/tabwriter"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"owlmoney/internal/core"
	"owlmoney/internal/recurring"
)

// recordFlags select one record of an account or card by its history index.
type recordFlags struct {
	name  string
	index int
}

func (r *recordFlags) set(f *flag.FlagSet) {
	f.StringVar(&r.name, "of", "", "Account or card name")
	f.IntVar(&r.index, "index", 0, "Record number as shown by history")
}

func (r *recordFlags) check() error {
	if r.name == "" {
		return errors.New("-of is required")
	}
	if r.index < 1 {
		return errors.New("-index must be at least 1")
	}
	return nil
}

type editCmd struct {
	env *Env
	recordFlags
	edit core.Edit
}

func (*editCmd) Name() string     { return "edit" }
func (*editCmd) Synopsis() string { return "edit an account transaction or an unpaid card expenditure" }
func (*editCmd) Usage() string {
	return `owlmoney edit -of <name> -index <n> [-desc text] [-amount amount] [-date dd/MM/yyyy] [-category name]

  Blank fields are left unchanged. The edit is refused if it would take an
  account balance out of range or a card month over its limit. Card bill
  transactions cannot be edited.
`
}

func (c *editCmd) SetFlags(f *flag.FlagSet) {
	c.recordFlags.set(f)
	f.StringVar(&c.edit.Description, "desc", "", "New description")
	f.StringVar(&c.edit.Amount, "amount", "", "New amount")
	f.StringVar(&c.edit.Date, "date", "", "New date, dd/MM/yyyy")
	f.StringVar(&c.edit.Category, "category", "", "New category")
}

func (c *editCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.check(); err != nil {
		return usage(c.env.Out, err)
	}
	if c.edit.IsEmpty() {
		return usage(c.env.Out, errors.New("nothing to edit"))
	}
	return c.env.run(ctx, func(s *Session) error {
		var (
			tx  core.Transaction
			err error
		)
		if a, aerr := s.Profile.Account(c.name); aerr == nil {
			tx, err = a.EditTransaction(c.index, c.edit)
		} else {
			card, cerr := s.Profile.Card(c.name)
			if cerr != nil {
				return cerr
			}
			tx, err = card.EditExpenditure(c.index, c.edit)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(s.env.Out, "edited %d: %s\n", c.index, tx)
		return nil
	})
}

type deleteCmd struct {
	env *Env
	recordFlags
}

func (*deleteCmd) Name() string     { return "delete" }
func (*deleteCmd) Synopsis() string { return "delete an account transaction or an unpaid card expenditure" }
func (*deleteCmd) Usage() string {
	return `owlmoney delete -of <name> -index <n>

  Refused if removing the record would take the account balance out of
  range. Card bill transactions are removed with unpaybill.
`
}
func (c *deleteCmd) SetFlags(f *flag.FlagSet) { c.recordFlags.set(f) }

func (c *deleteCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.check(); err != nil {
		return usage(c.env.Out, err)
	}
	return c.env.run(ctx, func(s *Session) error {
		var (
			tx  core.Transaction
			err error
		)
		if a, aerr := s.Profile.Account(c.name); aerr == nil {
			tx, err = a.DeleteTransaction(c.index)
		} else {
			card, cerr := s.Profile.Card(c.name)
			if cerr != nil {
				return cerr
			}
			tx, err = card.DeleteExpenditure(c.index)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(s.env.Out, "deleted %d: %s\n", c.index, tx)
		return nil
	})
}

type editCardCmd struct {
	env    *Env
	name   string
	limit  string
	rebate string
}

func (*editCardCmd) Name() string     { return "editcard" }
func (*editCardCmd) Synopsis() string { return "change a card's monthly limit or rebate" }
func (*editCardCmd) Usage() string {
	return `owlmoney editcard -name <card> [-limit amount] [-rebate percent]

  A new limit applies to later expenditures; recorded ones are kept.
`
}

func (c *editCardCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "Card name")
	f.StringVar(&c.limit, "limit", "", "New monthly spending limit")
	f.StringVar(&c.rebate, "rebate", "", "New cash back percentage")
}

func (c *editCardCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.name == "" {
		return usage(c.env.Out, errors.New("-name is required"))
	}
	if c.limit == "" && c.rebate == "" {
		return usage(c.env.Out, errors.New("nothing to edit, set -limit or -rebate"))
	}
	var (
		limit  core.Money
		rebate decimal.Decimal
		err    error
	)
	if c.limit != "" {
		if limit, err = core.ParseMoney(c.limit); err != nil {
			return usage(c.env.Out, fmt.Errorf("limit: %w", err))
		}
	}
	if c.rebate != "" {
		if rebate, err = decimal.NewFromString(c.rebate); err != nil {
			return usage(c.env.Out, fmt.Errorf("rebate: %w", err))
		}
	}
	return c.env.run(ctx, func(s *Session) error {
		card, err := s.Profile.Card(c.name)
		if err != nil {
			return err
		}
		if c.limit != "" {
			if err := card.SetLimit(limit); err != nil {
				return err
			}
		}
		if c.rebate != "" {
			if err := card.SetRebate(rebate); err != nil {
				return err
			}
		}
		fmt.Fprintf(s.env.Out, "card %s: limit %s, rebate %s%%\n", card.Name(), card.Limit(), card.Rebate())
		return nil
	})
}

type recurringCmd struct {
	env      *Env
	account  string
	n        int
	desc     string
	category string
}

func (*recurringCmd) Name() string     { return "recurring" }
func (*recurringCmd) Synopsis() string { return "list or search the recurring expenditures of an account" }
func (*recurringCmd) Usage() string {
	return `owlmoney recurring -account <name> [-n 10] [-desc text] [-category text]

  Without filters, lists the most recently added templates first.
`
}

func (c *recurringCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "Saving account name")
	f.IntVar(&c.n, "n", 10, "Number of templates to list")
	f.StringVar(&c.desc, "desc", "", "Description contains")
	f.StringVar(&c.category, "category", "", "Category contains")
}

func (c *recurringCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.account == "" {
		return usage(c.env.Out, errors.New("-account is required"))
	}
	return c.env.run(ctx, func(s *Session) error {
		a, err := s.Profile.Account(c.account)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(s.env.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "#\tNEXT DUE\tDESCRIPTION\tCATEGORY\tAMOUNT\tSPENT")
		row := func(i int, t recurring.Template) {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%t\n", i, t.NextDue.StorageString(), t.Description, t.Category, t.Amount, t.Spent)
		}
		if c.desc != "" || c.category != "" {
			found, err := a.FindRecurring(c.desc, c.category)
			if err != nil {
				return err
			}
			for _, e := range found {
				row(e.Index, e.Template)
			}
			return w.Flush()
		}
		seq, err := a.ListRecurring(c.n)
		if err != nil {
			return err
		}
		for i, t := range seq {
			row(i, t)
		}
		return w.Flush()
	})
}

type editRecurringCmd struct {
	env     *Env
	account string
	index   int
	edit    recurring.Edit
}

func (*editRecurringCmd) Name() string     { return "editrecurring" }
func (*editRecurringCmd) Synopsis() string { return "edit a recurring expenditure" }
func (*editRecurringCmd) Usage() string {
	return `owlmoney editrecurring -account <name> -index <n> [-desc text] [-amount amount] [-category name]

  The due date and day of month cannot be changed.
`
}

func (c *editRecurringCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "Saving account name")
	f.IntVar(&c.index, "index", 0, "Template number as shown by recurring")
	f.StringVar(&c.edit.Description, "desc", "", "New description")
	f.StringVar(&c.edit.Amount, "amount", "", "New monthly amount")
	f.StringVar(&c.edit.Category, "category", "", "New category")
}

func (c *editRecurringCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.account == "" || c.index < 1 {
		return usage(c.env.Out, errors.New("-account and -index are required"))
	}
	if c.edit == (recurring.Edit{}) {
		return usage(c.env.Out, errors.New("nothing to edit"))
	}
	return c.env.run(ctx, func(s *Session) error {
		a, err := s.Profile.Account(c.account)
		if err != nil {
			return err
		}
		t, err := a.EditRecurring(c.index, c.edit)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.env.Out, "edited recurring %d: %s\n", c.index, t)
		return nil
	})
}

type deleteRecurringCmd struct {
	env     *Env
	account string
	index   int
}

func (*deleteRecurringCmd) Name() string     { return "deleterecurring" }
func (*deleteRecurringCmd) Synopsis() string { return "stop a recurring expenditure" }
func (*deleteRecurringCmd) Usage() string {
	return `owlmoney deleterecurring -account <name> -index <n>

  Expenditures already posted by the template stay in the ledger.
`
}

func (c *deleteRecurringCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "Saving account name")
	f.IntVar(&c.index, "index", 0, "Template number as shown by recurring")
}

func (c *deleteRecurringCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.account == "" || c.index < 1 {
		return usage(c.env.Out, errors.New("-account and -index are required"))
	}
	return c.env.run(ctx, func(s *Session) error {
		a, err := s.Profile.Account(c.account)
		if err != nil {
			return err
		}
		t, err := a.DeleteRecurring(c.index)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.env.Out, "deleted recurring %d: %s\n", c.index, t)
		return nil
	})
}
