package cli

import (
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/warp/ledger/ledger"
)

const timestampLayout = "2006-01-02 15:04:05"

// formatMoney renders m as $1,234.56. Non-finite balances are shown as they
// are rather than hidden.
func formatMoney(m ledger.Money) string {
	f := m.Float64()
	switch {
	case math.IsNaN(f):
		return "$NaN"
	case math.IsInf(f, 1):
		return "$Inf"
	case math.IsInf(f, -1):
		return "-$Inf"
	}

	d, _ := m.Decimal()
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	s := d.StringFixed(2)
	whole, cents := s[:len(s)-3], s[len(s)-3:]
	return sign + "$" + groupThousands(whole) + cents
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

func displayHolder(name string) string {
	if name == "" {
		return "(unnamed)"
	}
	return name
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func renderAccounts(w io.Writer, res ledger.ListResult) {
	table := newTable(w, []string{"ID", "Holder", "Balance", "Created", "Transactions"})
	for _, a := range res.Accounts {
		table.Append([]string{
			a.ID,
			displayHolder(a.HolderName),
			formatMoney(a.Balance),
			a.CreatedOn,
			strconv.Itoa(a.TransactionCount),
		})
	}
	table.SetFooter([]string{"", "Total", formatMoney(res.Total), "", ""})
	table.Render()
}

func renderHistory(w io.Writer, txs []ledger.Transaction) {
	table := newTable(w, []string{"Time", "Type", "Amount", "Balance After", "Description"})
	for _, tx := range txs {
		table.Append([]string{
			tx.Timestamp.Format(timestampLayout),
			string(tx.Type),
			formatMoney(tx.Amount),
			formatMoney(tx.BalanceAfter),
			tx.Description,
		})
	}
	table.Render()
}
