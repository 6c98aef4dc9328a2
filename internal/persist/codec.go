// Package persist converts a profile to and from named row tables and writes
// them through a sheets.TableStore.
package persist

import (
	"fmt"
	"iter"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"owlmoney/internal/account"
	"owlmoney/internal/card"
	"owlmoney/internal/core"
	"owlmoney/internal/recurring"
	ports "owlmoney/internal/sheets"
)

const (
	AccountsTable = "accounts"
	CardsTable    = "cards"
)

// Table headers. The recurring table carries an extra anchorDay column so
// month-end templates keep their day; older tables without it still load.
var (
	TransactionHeader = []string{"description", "amount", "date", "category", "cardId", "billDate", "spent"}
	RecurringHeader   = []string{"description", "amount", "date", "category", "spent", "anchorDay"}
	AccountHeader     = []string{"name", "kind", "amount", "income", "nextIncomeDate"}
	CardHeader        = []string{"name", "limit", "rebate", "id"}
)

func TransactionsTable(accountName string) string { return "account/" + accountName + "/transactions" }
func RecurringTable(accountName string) string    { return "account/" + accountName + "/recurring" }
func PaidTable(cardName string) string            { return "card/" + cardName + "/paid" }
func UnpaidTable(cardName string) string          { return "card/" + cardName + "/unpaid" }

// columns maps header names to positions and reads cells by name.
type columns struct {
	table string
	pos   map[string]int
}

func newColumns(table string, t ports.Table, required []string) (columns, error) {
	c := columns{table: table, pos: make(map[string]int, len(t.Header))}
	for i, h := range t.Header {
		c.pos[strings.TrimSpace(h)] = i
	}
	for _, name := range required {
		if _, ok := c.pos[name]; !ok {
			return columns{}, fmt.Errorf("%s: %w: missing column %q", table, core.ErrValidation, name)
		}
	}
	return c, nil
}

func (c columns) get(row []string, name string) string {
	i, ok := c.pos[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (c columns) rowError(line int, err error) error {
	// Line numbers count the header as line 1.
	return fmt.Errorf("%s line %d: %w", c.table, line+2, err)
}

// EncodeTransactions renders a ledger in storage order.
func EncodeTransactions(seq iter.Seq2[int, core.Transaction]) ports.Table {
	t := ports.Table{Header: TransactionHeader}
	for _, tx := range seq {
		cardID, billDate := "", ""
		if id, ym, ok := tx.CardBill(); ok {
			cardID, billDate = id.String(), ym.String()
		}
		t.Rows = append(t.Rows, []string{
			tx.Description,
			tx.Amount.String(),
			tx.Date.StorageString(),
			tx.Category,
			cardID,
			billDate,
			strconv.FormatBool(tx.IsDebit()),
		})
	}
	return t
}

// DecodeTransactions restores records, including direction and card bill
// linkage.
func DecodeTransactions(table string, t ports.Table) ([]core.Transaction, error) {
	cols, err := newColumns(table, t, []string{"description", "amount", "date", "category", "spent"})
	if err != nil {
		return nil, err
	}
	out := make([]core.Transaction, 0, len(t.Rows))
	for i, row := range t.Rows {
		tx, err := decodeTransaction(cols, row)
		if err != nil {
			return nil, cols.rowError(i, err)
		}
		out = append(out, tx)
	}
	return out, nil
}

func decodeTransaction(cols columns, row []string) (core.Transaction, error) {
	amount, err := core.ParseStoredMoney(cols.get(row, "amount"))
	if err != nil {
		return core.Transaction{}, err
	}
	date, err := core.ParseDate(cols.get(row, "date"))
	if err != nil {
		return core.Transaction{}, err
	}
	debit, err := strconv.ParseBool(cols.get(row, "spent"))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("%w: spent must be true or false", core.ErrValidation)
	}
	desc, category := cols.get(row, "description"), cols.get(row, "category")

	if raw := cols.get(row, "cardId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("%w: card id %q: %v", core.ErrValidation, raw, err)
		}
		ym, err := core.ParseYearMonth(cols.get(row, "billDate"))
		if err != nil {
			return core.Transaction{}, err
		}
		if debit {
			return core.NewCardBillExpenditure(desc, amount, date, id, ym), nil
		}
		return core.NewCardBillDeposit(desc, amount, date, id, ym), nil
	}
	if debit {
		return core.NewExpenditure(desc, amount, date, category), nil
	}
	return core.NewDeposit(desc, amount, date, category), nil
}

// EncodeRecurring renders the templates of an account.
func EncodeRecurring(seq iter.Seq2[int, recurring.Template]) ports.Table {
	t := ports.Table{Header: RecurringHeader}
	for _, tpl := range seq {
		t.Rows = append(t.Rows, []string{
			tpl.Description,
			tpl.Amount.String(),
			tpl.NextDue.StorageString(),
			tpl.Category,
			strconv.FormatBool(tpl.Spent),
			strconv.Itoa(tpl.AnchorDay()),
		})
	}
	return t
}

func DecodeRecurring(table string, t ports.Table) ([]recurring.Template, error) {
	cols, err := newColumns(table, t, []string{"description", "amount", "date", "category", "spent"})
	if err != nil {
		return nil, err
	}
	out := make([]recurring.Template, 0, len(t.Rows))
	for i, row := range t.Rows {
		amount, err := core.ParseStoredMoney(cols.get(row, "amount"))
		if err != nil {
			return nil, cols.rowError(i, err)
		}
		due, err := core.ParseDate(cols.get(row, "date"))
		if err != nil {
			return nil, cols.rowError(i, err)
		}
		spent, err := strconv.ParseBool(cols.get(row, "spent"))
		if err != nil {
			return nil, cols.rowError(i, fmt.Errorf("%w: spent must be true or false", core.ErrValidation))
		}
		tpl := recurring.NewTemplate(cols.get(row, "description"), amount, due, cols.get(row, "category"))
		tpl.Spent = spent
		if raw := cols.get(row, "anchorDay"); raw != "" {
			day, err := strconv.Atoi(raw)
			if err != nil || day < 1 || day > 31 {
				return nil, cols.rowError(i, core.ErrInvalidDay)
			}
			tpl = tpl.WithAnchorDay(day)
		}
		out = append(out, tpl)
	}
	return out, nil
}

// AccountRow is one row of the accounts table.
type AccountRow struct {
	Name       string
	Kind       account.Kind
	Balance    core.Money
	Income     core.Money
	NextIncome core.Date
}

func EncodeAccounts(accounts []*account.Account) ports.Table {
	t := ports.Table{Header: AccountHeader}
	for _, a := range accounts {
		income, next := "", ""
		if amount, due, ok := a.Income(); ok {
			income, next = amount.String(), due.StorageString()
		}
		t.Rows = append(t.Rows, []string{a.Name(), a.Kind().String(), a.Balance().String(), income, next})
	}
	return t
}

func DecodeAccounts(t ports.Table) ([]AccountRow, error) {
	cols, err := newColumns(AccountsTable, t, []string{"name", "kind", "amount"})
	if err != nil {
		return nil, err
	}
	out := make([]AccountRow, 0, len(t.Rows))
	for i, row := range t.Rows {
		r := AccountRow{Name: cols.get(row, "name")}
		if r.Kind, err = account.ParseKind(cols.get(row, "kind")); err != nil {
			return nil, cols.rowError(i, err)
		}
		if r.Balance, err = core.ParseStoredMoney(cols.get(row, "amount")); err != nil {
			return nil, cols.rowError(i, err)
		}
		if raw := cols.get(row, "income"); raw != "" {
			if r.Income, err = core.ParseStoredMoney(raw); err != nil {
				return nil, cols.rowError(i, err)
			}
			if r.NextIncome, err = core.ParseDate(cols.get(row, "nextIncomeDate")); err != nil {
				return nil, cols.rowError(i, err)
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// CardRow is one row of the cards table.
type CardRow struct {
	Name   string
	Limit  core.Money
	Rebate decimal.Decimal
	ID     uuid.UUID
}

func EncodeCards(cards []*card.Card) ports.Table {
	t := ports.Table{Header: CardHeader}
	for _, c := range cards {
		t.Rows = append(t.Rows, []string{c.Name(), c.Limit().String(), c.Rebate().String(), c.ID().String()})
	}
	return t
}

func DecodeCards(t ports.Table) ([]CardRow, error) {
	cols, err := newColumns(CardsTable, t, []string{"name", "limit", "rebate", "id"})
	if err != nil {
		return nil, err
	}
	out := make([]CardRow, 0, len(t.Rows))
	for i, row := range t.Rows {
		r := CardRow{Name: cols.get(row, "name")}
		if r.Limit, err = core.ParseStoredMoney(cols.get(row, "limit")); err != nil {
			return nil, cols.rowError(i, err)
		}
		if r.Rebate, err = decimal.NewFromString(cols.get(row, "rebate")); err != nil {
			return nil, cols.rowError(i, fmt.Errorf("%w: rebate %q", core.ErrValidation, cols.get(row, "rebate")))
		}
		if r.ID, err = uuid.Parse(cols.get(row, "id")); err != nil {
			return nil, cols.rowError(i, fmt.Errorf("%w: card id %q", core.ErrValidation, cols.get(row, "id")))
		}
		out = append(out, r)
	}
	return out, nil
}
