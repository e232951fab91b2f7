// Package webhook_dispatcher applies stored provider events to the
// reconciliation state with bounded exponential backoff. Intake (the
// gateway) only persists events; everything that mutates state happens
// here, so a provider burst never blocks the HTTP surface.
package webhook_dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bank-reconciliation/internal/config"
	"github.com/bank-reconciliation/internal/domain/audit"
	"github.com/bank-reconciliation/internal/domain/banktransaction"
	"github.com/bank-reconciliation/internal/domain/invoice"
	"github.com/bank-reconciliation/internal/domain/payment"
	"github.com/bank-reconciliation/internal/domain/reconciliation"
	"github.com/bank-reconciliation/internal/domain/shared"
	"github.com/bank-reconciliation/internal/domain/webhook"
	"github.com/bank-reconciliation/internal/matching_processor/service"
	"github.com/bank-reconciliation/internal/settlement"
)

// paymentEventPayload is the provider callback body for payment events
type paymentEventPayload struct {
	PaymentID uuid.UUID `json:"payment_id"`
	Reason    string    `json:"reason,omitempty"`
}

// Dispatcher polls due webhook events and applies them
type Dispatcher struct {
	webhookRepo webhook.Repository
	paymentRepo payment.Repository
	reconRepo   reconciliation.Repository
	invoiceRepo invoice.Repository
	txRepo      banktransaction.Repository
	txRunner    settlement.TxRunner
	auditTrail  service.AuditTrail
	logger      *slog.Logger
	cfg         config.WebhookConfig
}

func NewDispatcher(
	cfg config.WebhookConfig,
	webhookRepo webhook.Repository,
	paymentRepo payment.Repository,
	reconRepo reconciliation.Repository,
	invoiceRepo invoice.Repository,
	txRepo banktransaction.Repository,
	txRunner settlement.TxRunner,
	auditTrail service.AuditTrail,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		webhookRepo: webhookRepo,
		paymentRepo: paymentRepo,
		reconRepo:   reconRepo,
		invoiceRepo: invoiceRepo,
		txRepo:      txRepo,
		txRunner:    txRunner,
		auditTrail:  auditTrail,
		logger:      logger,
		cfg:         cfg,
	}
}

// Start begins polling until context is canceled
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Starting Webhook Dispatcher",
		"poll_interval", d.cfg.PollingInterval.String(),
		"batch_size", d.cfg.BatchSize,
		"max_attempts", d.cfg.MaxAttempts,
	)
	ticker := time.NewTicker(d.cfg.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Webhook Dispatcher stopping due to context cancellation.")
			return
		case <-ticker.C:
			if err := d.processDueEvents(ctx); err != nil {
				d.logger.Error("Error during batch processing of webhook events", "error", err)
			}
		}
	}
}

func (d *Dispatcher) processDueEvents(ctx context.Context) error {
	events, err := d.webhookRepo.GetDue(ctx, d.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to get due webhook events: %w", err)
	}

	if len(events) == 0 {
		return nil
	}

	d.logger.Info("Fetched due webhook events", "count", len(events))

	for _, ev := range events {
		if err := d.apply(ctx, ev); err != nil {
			d.logger.Error("Failed to apply webhook event",
				"event_id", ev.ID.String(),
				"provider", ev.Provider,
				"event_type", string(ev.EventType),
				"attempts", ev.Attempts,
				"error", err,
			)
			ev.ScheduleRetry(err, d.cfg.InitialBackoff, d.cfg.MaxBackoff, d.cfg.MaxAttempts)
		} else {
			ev.MarkProcessed()
		}

		if err := d.webhookRepo.Update(ctx, ev); err != nil {
			d.logger.Error("Failed to persist webhook event state",
				"event_id", ev.ID.String(), "error", err)
		}
	}
	return nil
}

func (d *Dispatcher) apply(ctx context.Context, ev *webhook.Event) error {
	switch ev.EventType {
	case webhook.EventPaymentAccepted:
		return d.applyAccepted(ctx, ev)
	case webhook.EventPaymentRejected:
		return d.applyRejected(ctx, ev)
	case webhook.EventPaymentDuplicate:
		// Our idempotency key already absorbed the duplicate; record only
		d.logger.Info("Provider reported a duplicate payment",
			"provider", ev.Provider, "event_id", ev.EventID)
		return nil
	default:
		// Unknown types are absorbed; retrying cannot make them known
		d.logger.Warn("Ignoring webhook event of unknown type",
			"provider", ev.Provider, "event_type", string(ev.EventType))
		return nil
	}
}

func (d *Dispatcher) applyAccepted(ctx context.Context, ev *webhook.Event) error {
	p, body, err := d.resolvePayment(ctx, ev)
	if err != nil {
		return err
	}

	rec, err := d.reconRepo.GetByPayment(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("failed to resolve reconciliation for payment %s: %w", p.ID, err)
	}

	d.logger.Info("Provider confirmed payment",
		"provider", ev.Provider,
		"payment_id", p.ID.String(),
		"invoice_id", p.InvoiceID.String(),
	)
	d.auditTrail.Record(ctx, p.CompanyID, rec.TransactionID, &rec.ID, audit.EventPaymentConfirm, body)
	return nil
}

// applyRejected unwinds a posted payment the provider retroactively failed:
// the invoice's due amount is restored and the reconciliation is replaced
// by a fresh manual row carrying the rejection reason.
func (d *Dispatcher) applyRejected(ctx context.Context, ev *webhook.Event) error {
	p, body, err := d.resolvePayment(ctx, ev)
	if err != nil {
		return err
	}

	rec, err := d.reconRepo.GetByPayment(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("failed to resolve reconciliation for payment %s: %w", p.ID, err)
	}
	if rec.SupersededBy != nil {
		// A redelivery, or the operator already re-matched
		d.logger.Info("Rejected payment's reconciliation already superseded",
			"payment_id", p.ID.String(), "reconciliation_id", rec.ID.String())
		return nil
	}

	details, _ := json.Marshal(map[string]string{
		"rejected_payment_id": p.ID.String(),
		"provider":            ev.Provider,
		"reason":              body.Reason,
	})

	replacement := reconciliation.New(rec.CompanyID, rec.TransactionID)
	if err := replacement.MarkManual(rec.Candidates, details); err != nil {
		return err
	}

	err = d.txRunner.ExecuteTx(ctx, func(tx pgx.Tx) error {
		inv, err := d.invoiceRepo.WithTx(tx).LockForPosting(ctx, p.InvoiceID)
		if err != nil {
			return err
		}
		inv.RevertPayment(p.Amount)
		if err := d.invoiceRepo.WithTx(tx).ApplyPayment(ctx, inv); err != nil {
			return err
		}
		return d.reconRepo.WithTx(tx).Supersede(ctx, rec, replacement)
	})
	if err != nil {
		return fmt.Errorf("failed to unwind rejected payment %s: %w", p.ID, err)
	}

	if err := d.txRepo.UpdateReconciliationStatus(ctx, rec.TransactionID, shared.TransactionUnreconciled); err != nil {
		d.logger.Error("Failed to reset transaction settlement status after rejection",
			"transaction_id", rec.TransactionID.String(), "error", err)
	}

	d.logger.Info("Unwound rejected payment",
		"provider", ev.Provider,
		"payment_id", p.ID.String(),
		"reconciliation_id", rec.ID.String(),
		"replacement_id", replacement.ID.String(),
	)
	d.auditTrail.Record(ctx, rec.CompanyID, rec.TransactionID, &replacement.ID, audit.EventSuperseded, map[string]string{
		"superseded_id": rec.ID.String(),
		"reason":        "payment rejected: " + body.Reason,
	})
	return nil
}

func (d *Dispatcher) resolvePayment(ctx context.Context, ev *webhook.Event) (*payment.Payment, *paymentEventPayload, error) {
	var body paymentEventPayload
	if err := json.Unmarshal(ev.Payload, &body); err != nil {
		return nil, nil, fmt.Errorf("malformed payment event payload: %w", err)
	}
	if body.PaymentID == uuid.Nil {
		return nil, nil, fmt.Errorf("payment event carries no payment id")
	}

	// The provider may outrun our posting pipeline; a retry gives the
	// payment time to land.
	p, err := d.paymentRepo.GetByID(ctx, body.PaymentID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve payment %s: %w", body.PaymentID, err)
	}
	return p, &body, nil
}
