package naming

import (
	"testing"
	"time"
)

func fixedClock() time.Time {
	return time.Date(2026, 2, 17, 10, 30, 0, 0, time.UTC)
}

func TestGenerateDefaultsToCurrentDate(t *testing.T) {
	g := &Generator{Now: fixedClock}

	got := g.Generate("invoice", "Amex", "Import", "pdf", nil)
	want := "2026-02-17_Invoice_Amex_Import.pdf"
	if got != want {
		t.Fatalf("Generate() = %q, want %q", got, want)
	}
}

func TestGenerateWithExplicitDate(t *testing.T) {
	g := &Generator{Now: fixedClock}
	date := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)

	got := g.Generate("Certificate", "Metropolitan University", "Degree Award", "pdf", &date)
	want := "2025-12-01_Certificate_Metropolitan-University_Degree-Award.pdf"
	if got != want {
		t.Fatalf("Generate() = %q, want %q", got, want)
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	g := &Generator{Now: fixedClock}

	first := g.Generate("finance agreement", "Toyota Financial Services", "Settlement", "pdf", nil)
	second := g.Generate("finance agreement", "Toyota Financial Services", "Settlement", "pdf", nil)
	if first != second {
		t.Fatalf("expected identical filenames, got %q and %q", first, second)
	}
	if first != "2026-02-17_Finance-agreement_Toyota-Financial-Services_Settlement.pdf" {
		t.Fatalf("unexpected filename %q", first)
	}
}

func TestGenerateEmptyDocType(t *testing.T) {
	g := &Generator{Now: fixedClock}

	got := g.Generate("", "Amex", "Import", "pdf", nil)
	if got != "2026-02-17__Amex_Import.pdf" {
		t.Fatalf("unexpected filename %q", got)
	}
}
