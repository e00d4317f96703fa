// Package flexibee implements the ERP-facing side of the sync engine:
// a rate-limited HTTP client for the FlexiBee REST API, a paginated
// fetcher, the invoice-to-entry mapper, the reconciler that merges
// remote records into the local ledger, and the connector that
// orchestrates a full synchronization run.
package flexibee

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Invoice resources exposed by the API. Issued invoices become income
// entries, received invoices become expenses.
const (
	ResourceIssued   = "faktura-vydana"
	ResourceReceived = "faktura-prijata"
)

// Mode selects the reconciliation strategy for a run.
type Mode string

const (
	// ModeFull replaces every remote-sourced ledger entry.
	ModeFull Mode = "full"
	// ModeIncremental upserts only records changed since the watermark.
	ModeIncremental Mode = "incremental"
)

// Envelope is the winstrom wrapper every API response carries.
type Envelope struct {
	Winstrom Winstrom `json:"winstrom"`
}

// Winstrom holds the payload of an API response. Only the resource that
// was requested is populated; on errors the server fills Message instead.
type Winstrom struct {
	Version  string    `json:"@version,omitempty"`
	Issued   []Invoice `json:"faktura-vydana,omitempty"`
	Received []Invoice `json:"faktura-prijata,omitempty"`
	Success  string    `json:"success,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// Records returns the invoice list for the named resource.
func (w *Winstrom) Records(resource string) []Invoice {
	switch resource {
	case ResourceIssued:
		return w.Issued
	case ResourceReceived:
		return w.Received
	}
	return nil
}

// Invoice is a single invoice record in API detail form. Field types are
// lenient because the server is inconsistent about scalars: numbers and
// booleans arrive as strings depending on version and export settings.
type Invoice struct {
	ID          FlexString `json:"id"`
	Code        string     `json:"code"`
	DueDate     string     `json:"datSplat"`
	Total       Amount     `json:"sumCelkem"`
	Company     Company    `json:"firma"`
	VarSymbol   string     `json:"varSym"`
	Description string     `json:"popis"`
	LastUpdate  string     `json:"lastUpdate"`
	Paid        Truthy     `json:"uhrazeno"`
}

// CleanCode returns the invoice code with the "code:" identifier prefix
// stripped.
func (inv *Invoice) CleanCode() string {
	return strings.TrimPrefix(inv.Code, "code:")
}

// FlexString decodes a JSON string or number into a string.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	*s = FlexString(data)
	return nil
}

// Amount decodes a JSON number or numeric string into a float64.
type Amount float64

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		if v == "" {
			*a = 0
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", v, err)
		}
		*a = Amount(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*a = Amount(f)
	return nil
}

// Company decodes the firma field, which arrives either as a plain string
// reference or as an object with a showAs display name.
type Company string

// UnmarshalJSON implements json.Unmarshaler.
func (c *Company) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			ShowAs string `json:"showAs"`
			Name   string `json:"name"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		if obj.ShowAs != "" {
			*c = Company(obj.ShowAs)
		} else {
			*c = Company(obj.Name)
		}
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*c = Company(v)
	return nil
}

// Truthy decodes a JSON boolean or its string spelling.
type Truthy bool

// UnmarshalJSON implements json.Unmarshaler.
func (t *Truthy) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*t = Truthy(strings.EqualFold(v, "true"))
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		return err
	}
	*t = Truthy(b)
	return nil
}
