package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/bank-reconciliation/internal/domain/banktransaction"
	"github.com/bank-reconciliation/internal/domain/outbox"
	"github.com/bank-reconciliation/internal/domain/shared"
	"github.com/bank-reconciliation/internal/settlement"
)

// ErrImportNotFound indicates no running import with the given id
type ErrImportNotFound struct {
	ImportID uuid.UUID
}

func (e ErrImportNotFound) Error() string {
	return "no running import: " + e.ImportID.String()
}

// csvColumns is the required header of a transaction import file
var csvColumns = []string{
	"booking_date", "transaction_date", "amount", "currency",
	"description", "counterparty_name", "counterparty_iban", "external_id",
}

type importJob struct {
	mu        sync.Mutex
	cancelled bool
}

func (j *importJob) cancel() {
	j.mu.Lock()
	j.cancelled = true
	j.mu.Unlock()
}

func (j *importJob) isCancelled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelled
}

// IngestionServiceImpl implements the IngestionService interface
type IngestionServiceImpl struct {
	txRunner   settlement.TxRunner
	txRepo     banktransaction.Repository
	outboxRepo outbox.Repository
	batchSize  int
	logger     *slog.Logger

	mu      sync.Mutex
	imports map[uuid.UUID]*importJob
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(logger *slog.Logger, txRunner settlement.TxRunner, txRepo banktransaction.Repository, outboxRepo outbox.Repository, batchSize int) *IngestionServiceImpl {
	return &IngestionServiceImpl{
		txRunner:   txRunner,
		txRepo:     txRepo,
		outboxRepo: outboxRepo,
		batchSize:  batchSize,
		logger:     logger,
		imports:    make(map[uuid.UUID]*importJob),
	}
}

// IngestBatch stores one feed delivery row by row. A failing row never
// aborts the batch; its outcome is reported in the summary instead.
func (s *IngestionServiceImpl) IngestBatch(ctx context.Context, companyID, bankAccountID uuid.UUID, rows []TransactionInput, correlationID string) (*IngestSummary, error) {
	summary := &IngestSummary{Rows: make([]RowResult, 0, len(rows))}
	for i, row := range rows {
		result := s.ingestRow(ctx, companyID, bankAccountID, row, nil, i, correlationID)
		summary.add(result)
	}

	s.logger.Info("Feed batch ingested",
		"company_id", companyID.String(),
		"bank_account_id", bankAccountID.String(),
		"accepted", summary.Accepted,
		"duplicates", summary.Duplicates,
		"conflicts", summary.Conflicts,
		"rejected", summary.Rejected,
	)
	return summary, nil
}

// ImportCSV parses and ingests a transaction file. Rows commit in batches
// of the configured size; between batches the job checks for cancellation,
// and already committed rows are kept either way.
func (s *IngestionServiceImpl) ImportCSV(ctx context.Context, companyID, bankAccountID uuid.UUID, file io.Reader, correlationID string) (*IngestSummary, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = len(csvColumns)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if err := validateHeader(header); err != nil {
		return nil, err
	}

	importID := uuid.New()
	job := &importJob{}
	s.mu.Lock()
	s.imports[importID] = job
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.imports, importID)
		s.mu.Unlock()
	}()

	summary := &IngestSummary{ImportBatchID: &importID}

	index := 0
	for {
		if index%s.batchSize == 0 && index > 0 && job.isCancelled() {
			summary.Cancelled = true
			s.logger.Info("Import cancelled between batches",
				"import_batch_id", importID.String(), "rows_kept", index)
			break
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			summary.add(RowResult{Index: index, Outcome: IngestRejected, Error: err.Error()})
			index++
			continue
		}

		row, parseErr := parseCSVRow(record)
		if parseErr != nil {
			summary.add(RowResult{Index: index, Outcome: IngestRejected, Error: parseErr.Error()})
			index++
			continue
		}

		summary.add(s.ingestRow(ctx, companyID, bankAccountID, row, &importID, index, correlationID))
		index++
	}

	s.logger.Info("CSV import finished",
		"import_batch_id", importID.String(),
		"accepted", summary.Accepted,
		"duplicates", summary.Duplicates,
		"conflicts", summary.Conflicts,
		"rejected", summary.Rejected,
		"cancelled", summary.Cancelled,
	)
	return summary, nil
}

// CancelImport flags a running import for cancellation at its next batch
// boundary
func (s *IngestionServiceImpl) CancelImport(importID uuid.UUID) error {
	s.mu.Lock()
	job, ok := s.imports[importID]
	s.mu.Unlock()
	if !ok {
		return ErrImportNotFound{ImportID: importID}
	}
	job.cancel()
	s.logger.Info("Import cancellation requested", "import_batch_id", importID.String())
	return nil
}

// ingestRow stores one transaction. The row and its match-request outbox
// message commit in the same database transaction; a fingerprint collision
// stores the redelivery as a duplicate without queueing it for matching.
func (s *IngestionServiceImpl) ingestRow(ctx context.Context, companyID, bankAccountID uuid.UUID, in TransactionInput, importBatchID *uuid.UUID, index int, correlationID string) RowResult {
	tx, err := banktransaction.New(companyID, bankAccountID, in.Amount, in.Currency,
		in.BookingDate, in.TransactionDate, in.Description, in.CounterpartyName, in.CounterpartyIBAN, in.ExternalID)
	if err != nil {
		return RowResult{Index: index, Outcome: IngestRejected, Error: err.Error()}
	}
	tx.ValueDate = in.ValueDate
	tx.ImportBatchID = importBatchID

	request := &shared.MatchRequest{
		TransactionID: tx.ID,
		CompanyID:     companyID,
		BankAccountID: bankAccountID,
		Reason:        shared.MatchReasonIngested,
		CorrelationID: correlationID,
		Timestamp:     time.Now(),
	}
	message, err := outbox.NewMessage(request)
	if err != nil {
		return RowResult{Index: index, Outcome: IngestRejected, Error: err.Error()}
	}

	err = s.txRunner.ExecuteTx(ctx, func(dbTx pgx.Tx) error {
		if err := s.txRepo.WithTx(dbTx).Create(ctx, tx); err != nil {
			return err
		}
		return s.outboxRepo.WithTx(dbTx).Create(ctx, message)
	})
	if err == nil {
		return RowResult{Index: index, TransactionID: &tx.ID, Outcome: IngestAccepted}
	}

	var dup banktransaction.ErrDuplicateTransaction
	if errors.As(err, &dup) {
		return s.storeDuplicate(ctx, tx, dup.OriginalID, index)
	}

	s.logger.Error("Failed to ingest transaction",
		"company_id", companyID.String(),
		"fingerprint", tx.Fingerprint,
		"error", err,
	)
	return RowResult{Index: index, Outcome: IngestRejected, Error: err.Error()}
}

// storeDuplicate persists the redelivered row linked to the original. When
// the bank reuses an external id with a different payload the duplicate is
// reported as a conflict so an operator can inspect the amendment.
func (s *IngestionServiceImpl) storeDuplicate(ctx context.Context, tx *banktransaction.Transaction, originalID uuid.UUID, index int) RowResult {
	outcome := IngestDuplicate

	original, err := s.txRepo.GetByID(ctx, originalID)
	if err != nil {
		s.logger.Error("Failed to load original of duplicate transaction",
			"original_id", originalID.String(), "error", err)
	} else if tx.ExternalID != "" && differsFromOriginal(tx, original) {
		outcome = IngestConflict
		s.logger.Warn("Redelivered external id carries a different payload",
			"external_id", tx.ExternalID,
			"original_id", originalID.String(),
			"original_description", original.Description,
			"incoming_description", tx.Description,
		)
	}

	tx.MarkDuplicate(originalID)
	if err := s.txRepo.Create(ctx, tx); err != nil {
		s.logger.Error("Failed to persist duplicate transaction",
			"original_id", originalID.String(), "error", err)
		return RowResult{Index: index, Outcome: outcome, Error: err.Error()}
	}

	return RowResult{Index: index, TransactionID: &tx.ID, Outcome: outcome}
}

// differsFromOriginal reports whether the redelivery amends fields the
// fingerprint does not cover
func differsFromOriginal(incoming, original *banktransaction.Transaction) bool {
	return incoming.Description != original.Description ||
		incoming.CounterpartyName != original.CounterpartyName ||
		incoming.CounterpartyIBAN != original.CounterpartyIBAN
}

func (sum *IngestSummary) add(result RowResult) {
	switch result.Outcome {
	case IngestAccepted:
		sum.Accepted++
	case IngestDuplicate:
		sum.Duplicates++
	case IngestConflict:
		sum.Conflicts++
	case IngestRejected:
		sum.Rejected++
	}
	sum.Rows = append(sum.Rows, result)
}

func validateHeader(header []string) error {
	if len(header) != len(csvColumns) {
		return fmt.Errorf("CSV header has %d columns, expected %d", len(header), len(csvColumns))
	}
	for i, want := range csvColumns {
		if strings.TrimSpace(strings.ToLower(header[i])) != want {
			return fmt.Errorf("CSV column %d is %q, expected %q", i+1, header[i], want)
		}
	}
	return nil
}

func parseCSVRow(record []string) (TransactionInput, error) {
	bookingDate, err := time.Parse("2006-01-02", strings.TrimSpace(record[0]))
	if err != nil {
		return TransactionInput{}, fmt.Errorf("invalid booking_date %q", record[0])
	}
	transactionDate, err := time.Parse("2006-01-02", strings.TrimSpace(record[1]))
	if err != nil {
		return TransactionInput{}, fmt.Errorf("invalid transaction_date %q", record[1])
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(record[2]))
	if err != nil {
		return TransactionInput{}, fmt.Errorf("invalid amount %q", record[2])
	}

	return TransactionInput{
		Amount:           amount,
		Currency:         strings.TrimSpace(record[3]),
		BookingDate:      bookingDate,
		TransactionDate:  transactionDate,
		Description:      record[4],
		CounterpartyName: record[5],
		CounterpartyIBAN: record[6],
		ExternalID:       strings.TrimSpace(record[7]),
	}, nil
}
