// Package app accepts signed-contract copies from desks, files them under a
// year/month tree in the blob store, keeps a receipt row per copy, and
// dispatches the best-effort email duplicate.
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"signdesk/internal/dataurl"
	"signdesk/pkg/domain"
	"signdesk/pkg/storage"
	"signdesk/services/relay/internal/store"
)

const emailTimeout = 30 * time.Second

// ReceiptStore is the persistence surface for receipt bookkeeping.
type ReceiptStore interface {
	SaveReceipt(r domain.Receipt) error
	ListReceipts(limit int) ([]domain.Receipt, error)
	SetEmailStatus(id string, status domain.EmailStatus) error
}

// ContractMailer sends the email copy of one stored contract.
type ContractMailer interface {
	SendContractCopy(ctx context.Context, to, signerName, templateName, filename string, pdf []byte) error
}

// Config holds runtime configuration for the relay application.
type Config struct {
	DataPath string       // receipts SQLite file
	Store    ReceiptStore // overrides DataPath when set

	Objects storage.ObjectStore // required blob backend

	Mailer ContractMailer // nil disables the email copy
	Logger *slog.Logger
}

// Submission is one contract copy as posted by a desk.
type Submission struct {
	TemplateName string
	SignerName   string
	SignerPhone  string
	SignerEmail  string
	SignedAt     time.Time
	Document     string
}

// App wires blob storage, receipt bookkeeping, and the email dispatch.
type App struct {
	store   ReceiptStore
	objects storage.ObjectStore
	mailer  ContractMailer
	logger  *slog.Logger
	emails  sync.WaitGroup
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Objects == nil {
		return nil, errors.New("object store required")
	}
	receiptStore := cfg.Store
	if receiptStore == nil {
		if cfg.DataPath == "" {
			return nil, errors.New("data path required")
		}
		s, err := store.NewGormStore(cfg.DataPath)
		if err != nil {
			return nil, fmt.Errorf("init receipt store: %w", err)
		}
		receiptStore = s
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		store:   receiptStore,
		objects: cfg.Objects,
		mailer:  cfg.Mailer,
		logger:  logger,
	}, nil
}

// AcceptContract validates and files one submission: the decoded PDF goes
// into the blob store under the local-time year/month of receipt, a receipt
// row is written, and the email copy is dispatched detached. The returned
// receipt is what the HTTP layer acknowledges with.
func (a *App) AcceptContract(ctx context.Context, sub Submission) (domain.Receipt, error) {
	if strings.TrimSpace(sub.TemplateName) == "" {
		return domain.Receipt{}, fmt.Errorf("%w: templateName is required", ErrValidation)
	}
	if strings.TrimSpace(sub.SignerName) == "" {
		return domain.Receipt{}, fmt.Errorf("%w: signerName is required", ErrValidation)
	}
	mediaType, pdfBytes, err := dataurl.Parse(sub.Document)
	if err != nil || mediaType != dataurl.MediaTypePDF {
		return domain.Receipt{}, fmt.Errorf("%w: document must be a PDF data URL", ErrValidation)
	}
	if len(pdfBytes) == 0 {
		return domain.Receipt{}, fmt.Errorf("%w: document payload is empty", ErrValidation)
	}

	receivedAt := time.Now()
	key := buildFileKey(receivedAt, sub.SignerName, sub.TemplateName)
	if err := a.objects.Put(ctx, key, bytes.NewReader(pdfBytes), int64(len(pdfBytes)), "application/pdf"); err != nil {
		return domain.Receipt{}, fmt.Errorf("store document: %w", err)
	}
	fileURL, err := a.objects.PresignGet(ctx, key, 15*time.Minute)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("resolve file url: %w", err)
	}

	emailStatus := domain.EmailDisabled
	if a.mailer != nil {
		emailStatus = domain.EmailPending
	}
	receipt := domain.Receipt{
		ID:           uuid.NewString(),
		TemplateName: sub.TemplateName,
		SignerName:   sub.SignerName,
		SignerEmail:  sub.SignerEmail,
		FileKey:      key,
		FileURL:      fileURL,
		EmailStatus:  emailStatus,
		ReceivedAt:   receivedAt,
	}
	if err := a.store.SaveReceipt(receipt); err != nil {
		return domain.Receipt{}, fmt.Errorf("save receipt: %w", err)
	}

	a.dispatchEmail(receipt, pdfBytes)
	return receipt, nil
}

// ListReceipts returns recent receipts, newest first.
func (a *App) ListReceipts(limit int) ([]domain.Receipt, error) {
	return a.store.ListReceipts(limit)
}

// Wait blocks until in-flight email dispatches drain.
func (a *App) Wait() {
	a.emails.Wait()
}

// dispatchEmail sends the copy in a detached goroutine and records the
// outcome on the receipt. The HTTP response never waits on SMTP.
func (a *App) dispatchEmail(receipt domain.Receipt, pdf []byte) {
	if a.mailer == nil {
		return
	}
	a.emails.Add(1)
	go func() {
		defer a.emails.Done()

		if strings.TrimSpace(receipt.SignerEmail) == "" {
			a.logger.Warn("email copy skipped, no recipient", "receipt_id", receipt.ID)
			a.setEmailStatus(receipt.ID, domain.EmailFailed)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), emailTimeout)
		defer cancel()
		err := a.mailer.SendContractCopy(ctx, receipt.SignerEmail, receipt.SignerName,
			receipt.TemplateName, path.Base(receipt.FileKey), pdf)
		if err != nil {
			a.logger.Warn("email copy failed",
				"receipt_id", receipt.ID,
				"recipient", receipt.SignerEmail,
				"error", err)
			a.setEmailStatus(receipt.ID, domain.EmailFailed)
			return
		}
		a.logger.Info("email copy sent",
			"receipt_id", receipt.ID,
			"recipient", receipt.SignerEmail)
		a.setEmailStatus(receipt.ID, domain.EmailSent)
	}()
}

func (a *App) setEmailStatus(id string, status domain.EmailStatus) {
	if err := a.store.SetEmailStatus(id, status); err != nil {
		a.logger.Warn("update email status failed", "receipt_id", id, "error", err)
	}
}

// buildFileKey files copies under the local-time year/month of receipt.
// The unix timestamp suffix keeps same-signer resubmissions distinct.
func buildFileKey(ts time.Time, signerName, templateName string) string {
	return fmt.Sprintf("%04d/%02d/%s_%s_%d.pdf",
		ts.Year(), int(ts.Month()),
		sanitizeName(signerName), sanitizeName(templateName), ts.Unix())
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unnamed"
	}
	var b strings.Builder
	for _, r := range name {
		if r < 0x20 || strings.ContainsRune(`/\:*?"<>|`, r) {
			b.WriteRune('_')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
