package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CardBillCategory is the reserved category of the two legs of a card bill.
const CardBillCategory = "Credit Card"

const maxDescriptionLength = 200

// Direction selects deposits, expenditures or both.
type Direction uint8

const (
	AnyDirection Direction = iota
	Deposits
	Expenditures
)

// Matches reports whether tx goes in direction d.
func (d Direction) Matches(tx Transaction) bool {
	switch d {
	case Deposits:
		return !tx.debit
	case Expenditures:
		return tx.debit
	default:
		return true
	}
}

func (d Direction) String() string {
	switch d {
	case Deposits:
		return "deposit"
	case Expenditures:
		return "expenditure"
	default:
		return "transaction"
	}
}

// Transaction is one dated monetary movement. Description, Amount, Date and
// Category may be edited; direction and card linkage are set by the
// constructor and never change.
type Transaction struct {
	Description string
	Amount      Money
	Date        Date
	Category    string

	debit     bool
	cardID    uuid.UUID
	billMonth YearMonth
}

// NewDeposit creates a record that increases the balance.
func NewDeposit(description string, amount Money, date Date, category string) Transaction {
	return Transaction{Description: description, Amount: amount, Date: date, Category: category}
}

// NewExpenditure creates a record that reduces the balance.
func NewExpenditure(description string, amount Money, date Date, category string) Transaction {
	return Transaction{Description: description, Amount: amount, Date: date, Category: category, debit: true}
}

// NewCardBillExpenditure creates the debit leg of a card bill settlement.
func NewCardBillExpenditure(description string, amount Money, date Date, cardID uuid.UUID, billMonth YearMonth) Transaction {
	tx := NewExpenditure(description, amount, date, CardBillCategory)
	tx.cardID, tx.billMonth = cardID, billMonth
	return tx
}

// NewCardBillDeposit creates the rebate leg of a card bill settlement.
func NewCardBillDeposit(description string, amount Money, date Date, cardID uuid.UUID, billMonth YearMonth) Transaction {
	tx := NewDeposit(description, amount, date, CardBillCategory)
	tx.cardID, tx.billMonth = cardID, billMonth
	return tx
}

// IsDebit reports whether the record is an expenditure.
func (t Transaction) IsDebit() bool { return t.debit }

// IsCardBill reports whether the record is one leg of a card bill.
func (t Transaction) IsCardBill() bool { return t.cardID != uuid.Nil }

// CardBill returns the card-bill key of the record, if any.
func (t Transaction) CardBill() (cardID uuid.UUID, billMonth YearMonth, ok bool) {
	return t.cardID, t.billMonth, t.IsCardBill()
}

// MatchesCardBill reports whether the record carries the given card-bill key.
func (t Transaction) MatchesCardBill(cardID uuid.UUID, billMonth YearMonth) bool {
	return t.IsCardBill() && t.cardID == cardID && t.billMonth == billMonth
}

// Signed returns the amount as a balance delta: positive for deposits.
func (t Transaction) Signed() Money {
	if t.debit {
		return t.Amount.Neg()
	}
	return t.Amount
}

func (t Transaction) withDirection(debit bool) Transaction {
	t.debit = debit
	return t
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > maxDescriptionLength {
		return validationf("description too long (max %d characters)", maxDescriptionLength)
	}
	// A card bill rebate leg may be zero so the bill key is always two legs.
	if t.IsCardBill() && !t.debit {
		if t.Amount.IsNegative() {
			return ErrInvalidAmount
		}
	} else if err := t.Amount.Validate(); err != nil {
		return err
	}
	if t.IsCardBill() {
		if t.Category != CardBillCategory {
			return validationf("card bill category must be %q", CardBillCategory)
		}
		if err := t.billMonth.Validate(); err != nil {
			return err
		}
		return nil
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (t Transaction) String() string {
	sign := "+"
	if t.debit {
		sign = "-"
	}
	return fmt.Sprintf("[%s] $%s %s (%s) %s", sign, t.Amount, t.Description, t.Category, t.Date.Display())
}

// Edit holds raw user input for an in-place edit. Blank fields are left
// unchanged.
type Edit struct {
	Description string
	Amount      string
	Date        string
	Category    string
}

// IsEmpty reports whether the edit changes nothing.
func (e Edit) IsEmpty() bool {
	return isBlank(e.Description) && isBlank(e.Amount) && isBlank(e.Date) && isBlank(e.Category)
}

// Apply returns a copy of t with the edit applied. Amount and date are parsed
// before anything is changed.
func (e Edit) Apply(t Transaction) (Transaction, error) {
	out := t
	if !isBlank(e.Amount) {
		amount, err := ParseMoney(e.Amount)
		if err != nil {
			return t, err
		}
		out.Amount = amount
	}
	if !isBlank(e.Date) {
		date, err := ParseDate(e.Date)
		if err != nil {
			return t, err
		}
		out.Date = date
	}
	if !isBlank(e.Description) {
		out.Description = strings.TrimSpace(e.Description)
	}
	if !isBlank(e.Category) {
		if t.IsCardBill() {
			return t, validationf("category of a card bill transaction cannot be changed")
		}
		out.Category = strings.TrimSpace(e.Category)
	}
	if err := out.Validate(); err != nil {
		return t, err
	}
	return out, nil
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }
