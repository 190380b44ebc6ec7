package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/pamin/idms/internal/core/domain"
)

func newSinkWithMock(t *testing.T) (*Sink, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &Sink{db: db}, mock, func() { _ = db.Close() }
}

func testRecord(docType string) domain.MetadataRecord {
	return domain.MetadataRecord{
		DocID:      "doc-1",
		Timestamp:  time.Now().UTC(),
		OrigName:   "scan.pdf",
		NewName:    "2026-02-17_Invoice_Amex_Import.pdf",
		Category:   "05-financial",
		Entity:     "Amex",
		DocType:    docType,
		Confidence: 0.91,
		Path:       "archive/05-financial/x.pdf",
		Status:     domain.StatusProcessed,
		Hash:       strings.Repeat("ab", 32),
		HashValid:  true,
	}
}

func TestPersistRequiresDocID(t *testing.T) {
	sink, mock, done := newSinkWithMock(t)
	defer done()

	err := sink.Persist(context.Background(), domain.MetadataRecord{}, "")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPersistNonInvoiceSkipsInvoiceTables(t *testing.T) {
	sink, mock, done := newSinkWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO documents").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_events").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := sink.Persist(context.Background(), testRecord("Certificate"), "degree conferred with honours")
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPersistInvoiceCascadesToInvoiceAndAR(t *testing.T) {
	sink, mock, done := newSinkWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO documents").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO invoices").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO ar_items").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO audit_events").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	content := "Invoice number: INV-42\nTotal: £120.00\nBalance due by 01/03/2026 overdue"
	err := sink.Persist(context.Background(), testRecord("Invoice"), content)
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPersistRollsBackOnDocumentFailure(t *testing.T) {
	sink, mock, done := newSinkWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO documents").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := sink.Persist(context.Background(), testRecord("Invoice"), "invoice")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrSink) {
		t.Fatalf("expected ErrSink, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
