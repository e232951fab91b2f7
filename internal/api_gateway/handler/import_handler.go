package handler

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bank-reconciliation/internal/api_gateway/middleware"
	"github.com/bank-reconciliation/internal/api_gateway/service"
)

// ImportHandler handles HTTP requests for transaction ingestion: CSV file
// imports and bank feed deliveries
type ImportHandler struct {
	ingestionService service.IngestionService
	logger           *slog.Logger
}

// NewImportHandler creates a new import handler
func NewImportHandler(logger *slog.Logger, ingestionService service.IngestionService) *ImportHandler {
	return &ImportHandler{
		ingestionService: ingestionService,
		logger:           logger,
	}
}

// ImportCSV ingests a multipart transaction file. The response reports the
// per-row outcome; duplicates are not an error.
func (h *ImportHandler) ImportCSV(c *gin.Context) {
	companyID, err := uuid.Parse(c.PostForm("company_id"))
	if err != nil {
		RespondBadRequest(c, "Invalid company ID")
		return
	}
	bankAccountID, err := uuid.Parse(c.PostForm("bank_account_id"))
	if err != nil {
		RespondBadRequest(c, "Invalid bank account ID")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		RespondBadRequest(c, "Missing transaction file")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		h.logger.Error("Failed to open uploaded file", "filename", fileHeader.Filename, "error", err)
		RespondInternalError(c)
		return
	}
	defer file.Close()

	summary, err := h.ingestionService.ImportCSV(c.Request.Context(), companyID, bankAccountID, file, middleware.GetCorrelationID(c))
	if err != nil {
		h.logger.Error("CSV import failed", "filename", fileHeader.Filename, "error", err)
		RespondBadRequest(c, err.Error())
		return
	}

	RespondOK(c, summary)
}

// IngestFeed ingests a PSD2-style JSON batch for one bank account
func (h *ImportHandler) IngestFeed(c *gin.Context) {
	bankAccountID, err := uuid.Parse(c.Param("accountId"))
	if err != nil {
		RespondBadRequest(c, "Invalid bank account ID")
		return
	}

	var req FeedBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	companyID, err := uuid.Parse(req.CompanyID)
	if err != nil {
		RespondBadRequest(c, "Invalid company ID")
		return
	}

	rows := make([]service.TransactionInput, 0, len(req.Transactions))
	for i, tx := range req.Transactions {
		row, err := mapFeedTransaction(tx)
		if err != nil {
			h.logger.Error("Invalid feed transaction", "index", i, "error", err)
			RespondBadRequest(c, err.Error())
			return
		}
		rows = append(rows, row)
	}

	summary, err := h.ingestionService.IngestBatch(c.Request.Context(), companyID, bankAccountID, rows, middleware.GetCorrelationID(c))
	if err != nil {
		h.logger.Error("Feed ingestion failed", "bank_account_id", bankAccountID.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, summary)
}

// CancelImport stops a running import at its next batch boundary. Rows
// already committed stay ingested.
func (h *ImportHandler) CancelImport(c *gin.Context) {
	importID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid import ID")
		return
	}

	if err := h.ingestionService.CancelImport(importID); err != nil {
		var notFound service.ErrImportNotFound
		if errors.As(err, &notFound) {
			RespondNotFound(c, "No running import with that ID")
			return
		}
		h.logger.Error("Failed to cancel import", "import_id", importID.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondAccepted(c, gin.H{"import_batch_id": importID.String(), "status": "CANCELLING"})
}

func mapFeedTransaction(req FeedTransactionRequest) (service.TransactionInput, error) {
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return service.TransactionInput{}, errors.New("invalid amount: " + req.Amount)
	}
	bookingDate, err := time.Parse("2006-01-02", req.BookingDate)
	if err != nil {
		return service.TransactionInput{}, errors.New("invalid booking_date: " + req.BookingDate)
	}
	transactionDate, err := time.Parse("2006-01-02", req.TransactionDate)
	if err != nil {
		return service.TransactionInput{}, errors.New("invalid transaction_date: " + req.TransactionDate)
	}

	input := service.TransactionInput{
		Amount:           amount,
		Currency:         req.Currency,
		BookingDate:      bookingDate,
		TransactionDate:  transactionDate,
		Description:      req.Description,
		CounterpartyName: req.CounterpartyName,
		CounterpartyIBAN: req.CounterpartyIBAN,
		ExternalID:       req.ExternalID,
	}
	if req.ValueDate != nil {
		valueDate, err := time.Parse("2006-01-02", *req.ValueDate)
		if err != nil {
			return service.TransactionInput{}, errors.New("invalid value_date: " + *req.ValueDate)
		}
		input.ValueDate = &valueDate
	}
	return input, nil
}
