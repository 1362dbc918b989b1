// Package reports is the read-only reporting consumer of the ledger and the
// transaction history: CSV, PDF and XLSX exports plus system statistics. It
// never mutates engine state.
package reports

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/tealeg/xlsx"

	"atm-app/models"
)

const timeFormat = "2006-01-02 15:04:05"

func formatAmount(minor int64) string {
	return strconv.FormatFloat(float64(minor)/100, 'f', 2, 64)
}

// WriteTransactionsCSV streams the transaction log as CSV.
func WriteTransactionsCSV(w io.Writer, txs []models.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"ID", "Account", "Type", "Amount", "Counter Account", "Timestamp", "Resulting Balance", "Status", "Reason"}); err != nil {
		return err
	}
	for _, tx := range txs {
		rec := []string{
			tx.ID,
			tx.AccountID,
			string(tx.Type),
			formatAmount(tx.Amount),
			tx.CounterAccount,
			tx.Timestamp.Format(timeFormat),
			formatAmount(tx.ResultingBalance),
			string(tx.Status),
			tx.Reason,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteAccountsCSV streams the account list as CSV. PIN hashes are never
// exported.
func WriteAccountsCSV(w io.Writer, accounts []models.Account) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Account", "Balance", "Daily Withdrawn", "Daily Limit", "Per-Txn Limit", "Locked", "Closed", "Created"}); err != nil {
		return err
	}
	for _, a := range accounts {
		rec := []string{
			a.ID,
			formatAmount(a.Balance),
			formatAmount(a.DailyWithdrawn),
			formatAmount(a.DailyLimit),
			formatAmount(a.PerTxnLimit),
			strconv.FormatBool(a.Locked),
			strconv.FormatBool(a.Closed),
			a.CreatedAt.Format(timeFormat),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTransactionsPDF renders the transaction log as a PDF table.
func WriteTransactionsPDF(w io.Writer, txs []models.Transaction) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, "Transactions Report")
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(30, 7, "Account")
	pdf.Cell(35, 7, "Type")
	pdf.Cell(30, 7, "Amount")
	pdf.Cell(30, 7, "Counter")
	pdf.Cell(45, 7, "Timestamp")
	pdf.Cell(30, 7, "Balance")
	pdf.Cell(25, 7, "Status")
	pdf.Cell(50, 7, "Reason")
	pdf.Ln(7)

	pdf.SetFont("Arial", "", 10)
	for _, tx := range txs {
		pdf.CellFormat(30, 7, tx.AccountID, "1", 0, "", false, 0, "")
		pdf.CellFormat(35, 7, string(tx.Type), "1", 0, "", false, 0, "")
		pdf.CellFormat(30, 7, formatAmount(tx.Amount), "1", 0, "", false, 0, "")
		pdf.CellFormat(30, 7, tx.CounterAccount, "1", 0, "", false, 0, "")
		pdf.CellFormat(45, 7, tx.Timestamp.Format(timeFormat), "1", 0, "", false, 0, "")
		pdf.CellFormat(30, 7, formatAmount(tx.ResultingBalance), "1", 0, "", false, 0, "")
		pdf.CellFormat(25, 7, string(tx.Status), "1", 0, "", false, 0, "")
		pdf.CellFormat(50, 7, tx.Reason, "1", 0, "", false, 0, "")
		pdf.Ln(7)
	}
	return pdf.Output(w)
}

// WriteTransactionsXLSX renders the transaction log as an XLSX sheet.
func WriteTransactionsXLSX(w io.Writer, txs []models.Transaction) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Transactions")
	if err != nil {
		return err
	}

	row := sheet.AddRow()
	for _, h := range []string{"ID", "Account", "Type", "Amount", "Counter Account", "Timestamp", "Resulting Balance", "Status", "Reason"} {
		row.AddCell().SetValue(h)
	}
	for _, tx := range txs {
		row = sheet.AddRow()
		row.AddCell().SetValue(tx.ID)
		row.AddCell().SetValue(tx.AccountID)
		row.AddCell().SetValue(string(tx.Type))
		row.AddCell().SetValue(formatAmount(tx.Amount))
		row.AddCell().SetValue(tx.CounterAccount)
		row.AddCell().SetValue(tx.Timestamp.Format(timeFormat))
		row.AddCell().SetValue(formatAmount(tx.ResultingBalance))
		row.AddCell().SetValue(string(tx.Status))
		row.AddCell().SetValue(tx.Reason)
	}
	return file.Write(w)
}

// Stats summarize the system for the admin panel.
type Stats struct {
	TotalAccounts  int            `json:"total_accounts"`
	LockedAccounts int            `json:"locked_accounts"`
	ClosedAccounts int            `json:"closed_accounts"`
	TotalBalance   int64          `json:"total_balance"`
	TodayByType    map[string]int `json:"today_by_type"`
	TodayCount     int            `json:"today_count"`
}

// BuildStats aggregates accounts and the transaction log for one calendar
// day (usually today).
func BuildStats(accounts []models.Account, txs []models.Transaction, day time.Time) Stats {
	s := Stats{TodayByType: make(map[string]int)}
	for _, a := range accounts {
		s.TotalAccounts++
		if a.Locked {
			s.LockedAccounts++
		}
		if a.Closed {
			s.ClosedAccounts++
		}
		s.TotalBalance += a.Balance
	}
	d := day.Format("2006-01-02")
	for _, tx := range txs {
		if tx.Timestamp.Format("2006-01-02") != d {
			continue
		}
		s.TodayCount++
		s.TodayByType[string(tx.Type)]++
	}
	return s
}
