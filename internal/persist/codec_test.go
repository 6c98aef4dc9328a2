package persist

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"owlmoney/internal/core"
	ports "owlmoney/internal/sheets"
)

func TestTransactionsRoundTrip(t *testing.T) {
	id := uuid.MustParse("9b2f8a3e-1c4d-4e5f-8a6b-7c8d9e0f1a2b")
	march := core.YearMonth{Year: 2024, Month: time.March}
	ledger := core.NewLedger()
	ledger.ImportRaw(core.NewDeposit("salary", core.Cents(300000), core.NewDate(2024, 3, 1), "Income"))
	ledger.ImportRaw(core.NewExpenditure("rent", core.Cents(120000), core.NewDate(2024, 3, 2), "Housing"))
	ledger.ImportRaw(core.NewCardBillExpenditure("visa 2024-03 bill", core.Cents(50050), core.NewDate(2024, 4, 2), id, march))
	ledger.ImportRaw(core.NewCardBillDeposit("visa 2024-03 rebate", core.Cents(500), core.NewDate(2024, 4, 2), id, march))

	table := EncodeTransactions(ledger.All())
	if got := strings.Join(table.Rows[2], ","); got != "visa 2024-03 bill,500.50,02/04/2024,Credit Card,"+id.String()+",2024-03,true" {
		t.Fatalf("card bill row = %s", got)
	}

	txs, err := DecodeTransactions("t", table)
	if err != nil {
		t.Fatalf("DecodeTransactions: %v", err)
	}
	if len(txs) != 4 {
		t.Fatalf("decoded %d records", len(txs))
	}
	if txs[0].IsDebit() || !txs[1].IsDebit() {
		t.Error("direction not restored")
	}
	if !txs[2].MatchesCardBill(id, march) || !txs[2].IsDebit() {
		t.Error("debit leg not restored")
	}
	if !txs[3].MatchesCardBill(id, march) || txs[3].IsDebit() {
		t.Error("rebate leg not restored")
	}
	if txs[1].Amount != core.Cents(120000) || !txs[1].Date.Equal(core.NewDate(2024, 3, 2).Time) {
		t.Errorf("rent = %+v", txs[1])
	}
}

func TestDecodeTransactionsErrors(t *testing.T) {
	tests := []struct {
		name  string
		table ports.Table
		want  string
	}{
		{
			name:  "missing column",
			table: ports.Table{Header: []string{"description", "amount", "date", "category"}},
			want:  `missing column "spent"`,
		},
		{
			name: "bad amount",
			table: ports.Table{Header: TransactionHeader, Rows: [][]string{
				{"ok", "1.00", "01/01/2024", "x", "", "", "true"},
				{"bad", "-3", "01/01/2024", "x", "", "", "true"},
			}},
			want: "t line 3",
		},
		{
			name: "bad flag",
			table: ports.Table{Header: TransactionHeader, Rows: [][]string{
				{"bad", "3", "01/01/2024", "x", "", "", "maybe"},
			}},
			want: "spent must be true or false",
		},
		{
			name: "bad bill month",
			table: ports.Table{Header: TransactionHeader, Rows: [][]string{
				{"bill", "3", "01/01/2024", "Credit Card", uuid.NewString(), "March", "true"},
			}},
			want: "invalid month",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTransactions("t", tt.table)
			if !errors.Is(err, core.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}

func TestDecodeRecurringAnchorDay(t *testing.T) {
	withAnchor := ports.Table{Header: RecurringHeader, Rows: [][]string{
		{"gym", "30.00", "29/02/2024", "Health", "true", "31"},
	}}
	tpls, err := DecodeRecurring("r", withAnchor)
	if err != nil {
		t.Fatalf("DecodeRecurring: %v", err)
	}
	if tpls[0].AnchorDay() != 31 || !tpls[0].Spent {
		t.Fatalf("template = %+v anchor %d", tpls[0], tpls[0].AnchorDay())
	}

	legacy := ports.Table{
		Header: []string{"description", "amount", "date", "category", "spent"},
		Rows:   [][]string{{"gym", "30", "15/03/2024", "Health", "false"}},
	}
	tpls, err = DecodeRecurring("r", legacy)
	if err != nil {
		t.Fatalf("DecodeRecurring legacy: %v", err)
	}
	if tpls[0].AnchorDay() != 15 || tpls[0].Spent {
		t.Fatalf("legacy template = %+v", tpls[0])
	}

	bad := ports.Table{Header: RecurringHeader, Rows: [][]string{{"gym", "30", "15/03/2024", "Health", "false", "40"}}}
	if _, err := DecodeRecurring("r", bad); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeAccountsAndCards(t *testing.T) {
	accounts := ports.Table{Header: AccountHeader, Rows: [][]string{
		{"Stash", "saving", "1000.00", "250.00", "01/05/2024"},
		{"Daily", "current", "12.30", "", ""},
	}}
	rows, err := DecodeAccounts(accounts)
	if err != nil {
		t.Fatalf("DecodeAccounts: %v", err)
	}
	if rows[0].Income != core.Cents(25000) || rows[1].Kind.String() != "current" || rows[1].Balance != core.Cents(1230) {
		t.Fatalf("rows = %+v", rows)
	}

	cards := ports.Table{Header: CardHeader, Rows: [][]string{{"visa", "1000", "1.5", "not-a-uuid"}}}
	if _, err := DecodeCards(cards); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
