package profile

import (
	"errors"
	"fmt"

	"owlmoney/internal/core"
)

// Bill describes one card bill posted to or removed from a bank account.
type Bill struct {
	Card    string
	Account string
	Month   core.YearMonth
	Amount  core.Money
	Rebate  core.Money
	Moved   int
}

func billDescription(cardName string, ym core.YearMonth) string {
	return fmt.Sprintf("%s %s bill", cardName, ym)
}

func rebateDescription(cardName string, ym core.YearMonth) string {
	return fmt.Sprintf("%s %s rebate", cardName, ym)
}

// PayCardBill posts the month's bill of a card against a bank account as two
// linked legs, a debit for the unpaid total and a rebate deposit, then
// settles the month on the card. Only months before the current one can be
// paid.
func (p *Profile) PayCardBill(cardName, accountName string, ym core.YearMonth) (Bill, error) {
	c, err := p.Card(cardName)
	if err != nil {
		return Bill{}, err
	}
	a, err := p.Account(accountName)
	if err != nil {
		return Bill{}, err
	}
	if err := ym.Validate(); err != nil {
		return Bill{}, err
	}
	today := p.clock.Today()
	if !ym.First().Before(today.YearMonth().First().Time) {
		return Bill{}, fmt.Errorf("%w: the %s bill of %s can only be paid after the month ends", core.ErrValidation, ym, c.Name())
	}

	_, debitPosted := a.FindCardBillLegIndex(c.ID(), ym, core.Expenditures)
	_, rebatePosted := a.FindCardBillLegIndex(c.ID(), ym, core.Deposits)
	if debitPosted || rebatePosted {
		return Bill{}, fmt.Errorf("%w: the %s bill of %s has already been paid from %s", core.ErrValidation, ym, c.Name(), a.Name())
	}

	amount := c.TotalUnpaid(ym)
	if amount.IsZero() {
		return Bill{}, fmt.Errorf("%w: %s has no unpaid expenditures in %s", core.ErrNotFound, c.Name(), ym)
	}
	bill := Bill{Card: c.Name(), Account: a.Name(), Month: ym, Amount: amount, Rebate: c.RebateFor(amount)}

	debit := core.NewCardBillExpenditure(billDescription(c.Name(), ym), bill.Amount, today, c.ID(), ym)
	if err := a.PostExpenditure(debit); err != nil {
		return Bill{}, fmt.Errorf("pay %s bill: %w", ym, err)
	}
	rebate := core.NewCardBillDeposit(rebateDescription(c.Name(), ym), bill.Rebate, today, c.ID(), ym)
	if err := a.PostDeposit(rebate); err != nil {
		if _, rbErr := a.RemoveCardBillLeg(c.ID(), ym, core.Expenditures); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		return Bill{}, fmt.Errorf("pay %s bill rebate: %w", ym, err)
	}

	bill.Moved = c.SettleBill(ym)
	p.logger.Info("Card bill paid",
		"card", c.Name(),
		"account", a.Name(),
		"month", ym.String(),
		"amount", bill.Amount.String(),
		"rebate", bill.Rebate.String())
	return bill, nil
}

// ReverseCardBill removes both legs of a paid bill, rebate first, and moves
// the month back to the card's unpaid ledger.
func (p *Profile) ReverseCardBill(cardName, accountName string, ym core.YearMonth) (Bill, error) {
	c, err := p.Card(cardName)
	if err != nil {
		return Bill{}, err
	}
	a, err := p.Account(accountName)
	if err != nil {
		return Bill{}, err
	}
	if !a.IsCardBillPosted(c.ID(), ym) {
		return Bill{}, fmt.Errorf("%w: the %s bill of %s was not paid from %s", core.ErrNotFound, ym, c.Name(), a.Name())
	}

	rebate, err := a.RemoveCardBillLeg(c.ID(), ym, core.Deposits)
	if err != nil {
		return Bill{}, fmt.Errorf("remove %s bill rebate: %w", ym, err)
	}
	debit, err := a.RemoveCardBillLeg(c.ID(), ym, core.Expenditures)
	if err != nil {
		if rbErr := a.PostDeposit(rebate); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		return Bill{}, fmt.Errorf("remove %s bill: %w", ym, err)
	}

	bill := Bill{Card: c.Name(), Account: a.Name(), Month: ym, Amount: debit.Amount, Rebate: rebate.Amount}
	bill.Moved = c.ReverseSettlement(ym)
	p.logger.Info("Card bill reversed",
		"card", c.Name(),
		"account", a.Name(),
		"month", ym.String(),
		"amount", bill.Amount.String())
	return bill, nil
}
