package postgres

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pamin/idms/internal/core/domain"
)

// InvoiceFields are the sub-record values inferred from free text.
// Pointer fields distinguish "absent" from zero.
type InvoiceFields struct {
	IsInvoiceLike  bool
	InvoiceNumber  string
	InvoiceDate    *time.Time
	DueDate        *time.Time
	Currency       string
	Vendor         string
	Customer       string
	NetAmount      *float64
	VATAmount      *float64
	TotalAmount    *float64
	VATReclaimable float64
	IsAR           bool
}

var (
	invoiceNumberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?im)invoice\s*(?:number|no\.?|#)\s*[:\-]?\s*([A-Za-z0-9\-_/]+)`),
		regexp.MustCompile(`(?im)inv\s*(?:number|no\.?|#)\s*[:\-]?\s*([A-Za-z0-9\-_/]+)`),
	}
	invoiceDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?im)invoice\s*date\s*[:\-]?\s*([0-9]{1,2}[/\-][0-9]{1,2}[/\-][0-9]{2,4})`),
		regexp.MustCompile(`(?im)date\s*[:\-]?\s*([0-9]{4}\-[0-9]{2}\-[0-9]{2})`),
	}
	dueDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?im)due\s*date\s*[:\-]?\s*([0-9]{1,2}[/\-][0-9]{1,2}[/\-][0-9]{2,4})`),
		regexp.MustCompile(`(?im)payment\s*due\s*[:\-]?\s*([0-9]{1,2}[/\-][0-9]{1,2}[/\-][0-9]{2,4})`),
	}
	moneyPattern = regexp.MustCompile(`([£$€]?\s?[0-9][0-9,]*(?:\.[0-9]{2})?)`)
	arPattern    = regexp.MustCompile(`(?i)accounts receivable|overdue|balance due`)
	gbpPattern   = regexp.MustCompile(`(?i)\bGBP\b|£`)
	usdPattern   = regexp.MustCompile(`(?i)\bUSD\b|\$`)
	eurPattern   = regexp.MustCompile(`(?i)\bEUR\b|€`)
)

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"01/02/2006",
	"2 Jan 2006",
	"2 January 2006",
}

// InferInvoiceFields extracts invoice-like values by pattern matching.
// It is deliberately best-effort; absent values stay nil.
func InferInvoiceFields(rec domain.MetadataRecord, content string) InvoiceFields {
	lower := strings.ToLower(content)
	fields := InvoiceFields{
		IsInvoiceLike: strings.EqualFold(rec.DocType, "Invoice") || strings.Contains(lower, "invoice"),
		Vendor:        rec.Entity,
	}
	if !fields.IsInvoiceLike {
		return fields
	}

	fields.InvoiceNumber = firstMatch(invoiceNumberPatterns, content)
	fields.InvoiceDate = parseDate(firstMatch(invoiceDatePatterns, content))
	fields.DueDate = parseDate(firstMatch(dueDatePatterns, content))

	fields.TotalAmount = moneyFromLines(content, []string{"total", "amount due", "balance due"})
	fields.VATAmount = moneyFromLines(content, []string{"vat", "tax"})
	fields.NetAmount = moneyFromLines(content, []string{"subtotal", "net"})
	if fields.NetAmount == nil && fields.TotalAmount != nil && fields.VATAmount != nil {
		net := *fields.TotalAmount - *fields.VATAmount
		if net < 0 {
			net = 0
		}
		fields.NetAmount = &net
	}

	fields.Currency = detectCurrency(content)
	fields.IsAR = arPattern.MatchString(content)

	if fields.VATAmount != nil && !fields.IsAR {
		fields.VATReclaimable = *fields.VATAmount
	}
	return fields
}

func firstMatch(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// moneyFromLines scans line by line for a keyword and pulls the first
// monetary value off that line.
func moneyFromLines(text string, keywords []string) *float64 {
	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)
		matched := false
		for _, k := range keywords {
			if strings.Contains(lower, k) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if m := moneyPattern.FindStringSubmatch(line); m != nil {
			if v := parseMoney(m[1]); v != nil {
				return v
			}
		}
	}
	return nil
}

func parseMoney(raw string) *float64 {
	cleaned := strings.NewReplacer(
		",", "", "£", "", "$", "", "€", "",
		"GBP", "", "USD", "", "EUR", "", " ", "",
	).Replace(raw)
	if cleaned == "" {
		return nil
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

func detectCurrency(text string) string {
	switch {
	case gbpPattern.MatchString(text):
		return "GBP"
	case usdPattern.MatchString(text):
		return "USD"
	case eurPattern.MatchString(text):
		return "EUR"
	}
	return ""
}
