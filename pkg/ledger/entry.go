// Package ledger defines the local financial-transaction model and the
// stores the sync engine reads and writes. The ledger is a flat ordered
// collection keyed by an opaque entry id; the store contract is
// full-collection replace, which keeps reconciliation a pure in-memory
// merge followed by one atomic save.
package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Direction tags an entry as money in or money out.
type Direction string

const (
	// DirectionIncome marks a positive-amount entry (e.g. an issued invoice).
	DirectionIncome Direction = "income"
	// DirectionExpense marks a negative-amount entry (e.g. a received invoice).
	DirectionExpense Direction = "expense"
)

// PaymentStatus reflects whether the counterparty has settled the invoice.
type PaymentStatus string

const (
	// StatusPaid means the server reported the invoice as settled.
	StatusPaid PaymentStatus = "paid"
	// StatusUnpaid means the invoice is still outstanding.
	StatusUnpaid PaymentStatus = "unpaid"
)

// SourceManual is the provenance of entries typed in by a user. Entries
// imported from files carry the file name; entries synced from a remote
// system carry a remote key of the form "<source>:<code>".
const SourceManual = "manual"

// Entry is one local financial transaction. Amount sign encodes direction:
// positive for income, negative for expense. Customer and Supplier are
// mutually exclusive by direction.
type Entry struct {
	ID            string        `json:"id"`
	Date          string        `json:"date"` // YYYY-MM-DD
	Amount        float64       `json:"amount"`
	Direction     Direction     `json:"type"`
	Customer      string        `json:"customer"`
	Supplier      string        `json:"supplier"`
	VarSymbol     string        `json:"var_symbol"`
	Description   string        `json:"description"`
	PaymentStatus PaymentStatus `json:"payment_status"`

	// Source is the provenance: SourceManual, an import file name, or a
	// remote key "<source>:<code>" for remote-synced entries. The remote
	// key is stable across runs and is the sole join key for
	// reconciliation.
	Source string `json:"source_file"`

	CreatedAt time.Time `json:"created_at"`
}

// NewID generates a stable, locally unique entry id.
func NewID() string {
	return uuid.NewString()
}

// HasSource reports whether the entry's provenance carries the given
// remote-key prefix (e.g. "flexibee:").
func (e *Entry) HasSource(prefix string) bool {
	return strings.HasPrefix(e.Source, prefix)
}
