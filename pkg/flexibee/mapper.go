package flexibee

import (
	"fmt"
	"math"
	"strings"

	"github.com/cashflowhq/ledgersync/pkg/dates"
	"github.com/cashflowhq/ledgersync/pkg/ledger"
)

// SourcePrefix tags ledger entries that originate from the remote system.
// The full source value is the remote key "flexibee:<code>", which joins
// local entries to remote invoices across runs.
const SourcePrefix = "flexibee:"

// RemoteKey returns the remote key for an invoice code.
func RemoteKey(code string) string {
	return SourcePrefix + code
}

// MapInvoice converts one invoice record to a ledger entry. Issued
// invoices become positive income, received invoices negative expense,
// regardless of the sign the server sent. The returned entry carries no
// ID or CreatedAt; the reconciler assigns those.
func MapInvoice(resource string, inv Invoice) ledger.Entry {
	code := inv.CleanCode()

	entry := ledger.Entry{
		Date:        dates.Normalize(inv.DueDate),
		VarSymbol:   inv.VarSymbol,
		Description: inv.Description,
		Source:      RemoteKey(code),
	}
	if entry.Description == "" {
		entry.Description = fmt.Sprintf("Invoice %s", code)
	}

	amount := math.Abs(float64(inv.Total))
	counterparty := cleanCounterparty(string(inv.Company))
	if resource == ResourceIssued {
		entry.Direction = ledger.DirectionIncome
		entry.Amount = amount
		entry.Customer = counterparty
	} else {
		entry.Direction = ledger.DirectionExpense
		entry.Amount = -amount
		entry.Supplier = counterparty
	}

	if inv.Paid {
		entry.PaymentStatus = ledger.StatusPaid
	} else {
		entry.PaymentStatus = ledger.StatusUnpaid
	}

	return entry
}

// cleanCounterparty strips exactly one "code:" namespace prefix, and the
// whitespace after it, from a counterparty display name.
func cleanCounterparty(name string) string {
	if rest, ok := strings.CutPrefix(name, "code:"); ok {
		return strings.TrimLeft(rest, " \t")
	}
	return name
}

// MapInvoices converts a batch for one resource.
func MapInvoices(resource string, invoices []Invoice) []ledger.Entry {
	entries := make([]ledger.Entry, 0, len(invoices))
	for _, inv := range invoices {
		entries = append(entries, MapInvoice(resource, inv))
	}
	return entries
}
