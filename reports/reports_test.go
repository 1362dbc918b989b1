package reports

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"atm-app/models"
)

func sampleTxs() []models.Transaction {
	day := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	return []models.Transaction{
		{ID: "01", AccountID: "123456", Type: models.TxDeposit, Amount: 10000, Timestamp: day, ResultingBalance: 10000, Status: models.TxSuccess},
		{ID: "02", AccountID: "123456", Type: models.TxWithdrawal, Amount: 2500, Timestamp: day, ResultingBalance: 7500, Status: models.TxSuccess},
		{ID: "03", AccountID: "123456", Type: models.TxWithdrawal, Amount: 99999, Timestamp: day, ResultingBalance: 7500, Status: models.TxRejected, Reason: "insufficient funds"},
	}
}

func TestWriteTransactionsCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTransactionsCSV(&buf, sampleTxs()); err != nil {
		t.Fatalf("write: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("rows=%d want 4 (header + 3)", len(records))
	}
	// Amounts export in major units with two decimals.
	if records[1][3] != "100.00" {
		t.Fatalf("amount=%q want 100.00", records[1][3])
	}
	if records[3][8] != "insufficient funds" {
		t.Fatalf("reason=%q", records[3][8])
	}
}

func TestWriteAccountsCSV(t *testing.T) {
	accounts := []models.Account{
		{ID: "123456", Balance: 100000, DailyLimit: 200000, PerTxnLimit: 50000, CreatedAt: time.Now(), PINHash: []byte("secret")},
	}
	var buf bytes.Buffer
	if err := WriteAccountsCSV(&buf, accounts); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "secret") {
		t.Fatalf("pin hash leaked into export")
	}
	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("rows=%d want 2", len(records))
	}
}

func TestWriteTransactionsPDF(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTransactionsPDF(&buf, sampleTxs()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
		t.Fatalf("output is not a PDF")
	}
}

func TestWriteTransactionsXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTransactionsXLSX(&buf, sampleTxs()); err != nil {
		t.Fatalf("write: %v", err)
	}
	// XLSX files are zip archives.
	if !bytes.HasPrefix(buf.Bytes(), []byte("PK")) {
		t.Fatalf("output is not an xlsx archive")
	}
}

func TestBuildStats(t *testing.T) {
	day := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	accounts := []models.Account{
		{ID: "1", Balance: 100},
		{ID: "2", Balance: 200, Locked: true},
		{ID: "3", Balance: 300, Closed: true},
	}
	txs := append(sampleTxs(), models.Transaction{
		ID: "04", AccountID: "1", Type: models.TxDeposit,
		Timestamp: day.AddDate(0, 0, -1), Status: models.TxSuccess,
	})

	s := BuildStats(accounts, txs, day)
	if s.TotalAccounts != 3 || s.LockedAccounts != 1 || s.ClosedAccounts != 1 {
		t.Fatalf("counts wrong: %+v", s)
	}
	if s.TotalBalance != 600 {
		t.Fatalf("total balance=%d want 600", s.TotalBalance)
	}
	if s.TodayCount != 3 {
		t.Fatalf("today=%d want 3 (yesterday's record excluded)", s.TodayCount)
	}
	if s.TodayByType["WITHDRAWAL"] != 2 {
		t.Fatalf("withdrawals=%d want 2", s.TodayByType["WITHDRAWAL"])
	}
}
