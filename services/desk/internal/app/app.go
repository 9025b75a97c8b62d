package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ledongthuc/pdf"

	"signdesk/internal/dataurl"
	"signdesk/pkg/domain"
	"signdesk/pkg/export"
	"signdesk/pkg/synth"
	"signdesk/services/desk/internal/kvstore"
	"signdesk/services/desk/internal/records"
	"signdesk/services/desk/internal/relayclient"
)

const defaultForwardTimeout = 5 * time.Second

// emailPattern accepts the local@domain.tld shape and nothing fancier.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// RecordStore is the persistence surface the desk depends on. The concrete
// implementation is records.Store; tests may substitute their own.
type RecordStore interface {
	ListTemplates() ([]domain.Template, error)
	GetTemplate(id string) (domain.Template, bool, error)
	AddTemplate(draft domain.Template) (domain.Template, error)
	ListContracts() ([]domain.SignedContract, error)
	SearchContracts(query string) ([]domain.SignedContract, error)
	GetContract(id string) (domain.SignedContract, bool, error)
	AddContract(draft domain.SignedContract) (domain.SignedContract, error)
	MarkContractCompleted(id string) error
}

// RelayForwarder posts completed contracts to the relay service.
type RelayForwarder interface {
	Forward(ctx context.Context, contract domain.SignedContract) (relayclient.ForwardResult, error)
}

// Config holds runtime configuration for the desk application.
type Config struct {
	DataPath   string      // SQLite file backing the record store
	QuotaBytes int64       // 0 selects the kvstore default
	Store      RecordStore // overrides DataPath when set

	RelayURL string         // empty disables forwarding
	Relay    RelayForwarder // overrides RelayURL when set

	ForwardTimeout         time.Duration
	MarkCompletedOnForward bool

	Logger *slog.Logger
}

// App wires the synthesizer, the record store, and the relay forward task
// behind the operator-facing operations.
type App struct {
	store RecordStore
	synth *synth.Synthesizer
	relay RelayForwarder

	forwardTimeout         time.Duration
	markCompletedOnForward bool

	logger   *slog.Logger
	forwards sync.WaitGroup
}

// New constructs the application. The synthesizer's font capability check
// runs here, so a misconfigured text repertoire fails the process at startup
// instead of during a customer's signing session.
func New(cfg Config) (*App, error) {
	synthesizer, err := synth.New()
	if err != nil {
		return nil, fmt.Errorf("init synthesizer: %w", err)
	}

	recordStore := cfg.Store
	if recordStore == nil {
		if cfg.DataPath == "" {
			return nil, errors.New("data path required")
		}
		quota := cfg.QuotaBytes
		if quota <= 0 {
			quota = kvstore.DefaultQuotaBytes
		}
		kv, err := kvstore.Open(cfg.DataPath, quota)
		if err != nil {
			return nil, fmt.Errorf("open record store: %w", err)
		}
		recordStore = records.New(kv)
	}

	relay := cfg.Relay
	if relay == nil && cfg.RelayURL != "" {
		relay = relayclient.NewClient(cfg.RelayURL)
	}

	forwardTimeout := cfg.ForwardTimeout
	if forwardTimeout <= 0 {
		forwardTimeout = defaultForwardTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &App{
		store:                  recordStore,
		synth:                  synthesizer,
		relay:                  relay,
		forwardTimeout:         forwardTimeout,
		markCompletedOnForward: cfg.MarkCompletedOnForward,
		logger:                 logger,
	}, nil
}

// ListTemplates returns the templates newest first, seeding the samples on
// the first call against an empty store.
func (a *App) ListTemplates() ([]domain.Template, error) {
	return a.store.ListTemplates()
}

// GetTemplate retrieves a template by ID.
func (a *App) GetTemplate(id string) (domain.Template, bool, error) {
	return a.store.GetTemplate(id)
}

// UploadTemplate validates and registers a new template. The upload must be
// a parseable PDF; its page count and a human-readable size label are stored
// on the record, and the raw file is kept as a data URL so the store's quota
// fallback can drop it if space runs out.
func (a *App) UploadTemplate(name, category, filename string, r io.Reader) (domain.Template, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = nameFromFilename(filename)
	}
	if name == "" {
		return domain.Template{}, fmt.Errorf("%w: template name is required", ErrValidation)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return domain.Template{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return domain.Template{}, fmt.Errorf("%w: uploaded file is empty", ErrValidation)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return domain.Template{}, fmt.Errorf("%w: uploaded file is not a valid PDF", ErrValidation)
	}

	record, err := a.store.AddTemplate(domain.Template{
		Name:           name,
		Category:       domain.ParseCategory(category),
		SourceDocument: dataurl.Format(dataurl.MediaTypePDF, data),
		SizeLabel:      humanize.Bytes(uint64(len(data))),
		PageCount:      reader.NumPage(),
	})
	if err != nil {
		return domain.Template{}, err
	}
	return record, nil
}

// CompleteContract runs the final wizard step: validate the signer and
// signature, synthesize the signed document, save it locally, and hand the
// record to the detached relay forward. The local save is the source of
// truth; the response never waits on the relay.
func (a *App) CompleteContract(templateID string, signer domain.SignerInfo, signature string) (domain.SignedContract, error) {
	if err := validateSigner(signer); err != nil {
		return domain.SignedContract{}, err
	}
	if strings.TrimSpace(signature) == "" {
		return domain.SignedContract{}, fmt.Errorf("%w: signature is required", ErrValidation)
	}
	if strings.TrimSpace(templateID) == "" {
		return domain.SignedContract{}, fmt.Errorf("%w: template id is required", ErrValidation)
	}

	template, ok, err := a.store.GetTemplate(templateID)
	if err != nil {
		return domain.SignedContract{}, err
	}
	if !ok {
		return domain.SignedContract{}, ErrTemplateNotFound
	}

	document, err := a.synth.Synthesize(template, signer, signature)
	if err != nil {
		return domain.SignedContract{}, err
	}

	record, err := a.store.AddContract(domain.SignedContract{
		TemplateID:   template.ID,
		TemplateName: template.Name,
		SignerName:   signer.Name,
		SignerPhone:  signer.Phone,
		SignerEmail:  signer.Email,
		Document:     document,
	})
	if err != nil {
		return domain.SignedContract{}, err
	}

	a.forward(record)
	return record, nil
}

// SearchContracts filters the signed contracts; an empty query returns all.
func (a *App) SearchContracts(query string) ([]domain.SignedContract, error) {
	return a.store.SearchContracts(query)
}

// GetContract retrieves a signed contract by ID.
func (a *App) GetContract(id string) (domain.SignedContract, bool, error) {
	return a.store.GetContract(id)
}

// DownloadContract returns the decoded PDF bytes and the download filename
// for one signed contract.
func (a *App) DownloadContract(id string) (string, []byte, error) {
	contract, ok, err := a.store.GetContract(id)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, ErrContractNotFound
	}
	_, data, err := dataurl.Parse(contract.Document)
	if err != nil {
		return "", nil, fmt.Errorf("decode contract document: %w", err)
	}
	return export.DownloadFilename(contract), data, nil
}

// ExportTabular renders every signed contract as the CSV artifact.
func (a *App) ExportTabular() (string, []byte, error) {
	contracts, err := a.store.ListContracts()
	if err != nil {
		return "", nil, err
	}
	data, err := export.ToTabular(contracts)
	if err != nil {
		return "", nil, err
	}
	return export.TabularFilename(time.Now()), data, nil
}

// ExportArchive bundles one month's contracts into a ZIP. The month must be
// a YYYY-MM key as returned by ContractGroups.
func (a *App) ExportArchive(month string) (export.Archive, error) {
	month = strings.TrimSpace(month)
	if _, err := time.Parse("2006-01", month); err != nil {
		return export.Archive{}, fmt.Errorf("%w: month must look like 2006-01", ErrValidation)
	}
	contracts, err := a.store.ListContracts()
	if err != nil {
		return export.Archive{}, err
	}
	for _, group := range export.GroupByMonth(contracts) {
		if group.Key == month {
			return export.ToGroupedArchive(group.Key, group.Contracts)
		}
	}
	return export.Archive{}, fmt.Errorf("archive export for %s: %w", month, export.ErrNothingToExport)
}

// ContractGroups lists the month groups available for archive export,
// newest period first.
func (a *App) ContractGroups() ([]export.Group, error) {
	contracts, err := a.store.ListContracts()
	if err != nil {
		return nil, err
	}
	return export.GroupByMonth(contracts), nil
}

// Wait blocks until in-flight relay forwards drain. Called on shutdown so
// detached tasks are not killed mid-request.
func (a *App) Wait() {
	a.forwards.Wait()
}

// forward hands one saved contract to the relay in a detached goroutine.
// Outcomes are logged and never surfaced to the operator; a failure leaves
// the stored record exactly as saved.
func (a *App) forward(contract domain.SignedContract) {
	if a.relay == nil {
		return
	}
	a.forwards.Add(1)
	go func() {
		defer a.forwards.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.forwardTimeout)
		defer cancel()

		result, err := a.relay.Forward(ctx, contract)
		if err != nil {
			a.logger.Warn("relay forward failed",
				"contract_id", contract.ID,
				"template", contract.TemplateName,
				"error", err)
			return
		}
		a.logger.Info("relay forward succeeded",
			"contract_id", contract.ID,
			"file_name", result.FileName)

		if !a.markCompletedOnForward {
			return
		}
		if err := a.store.MarkContractCompleted(contract.ID); err != nil {
			a.logger.Warn("mark contract completed failed",
				"contract_id", contract.ID,
				"error", err)
		}
	}()
}

func validateSigner(signer domain.SignerInfo) error {
	if strings.TrimSpace(signer.Name) == "" {
		return fmt.Errorf("%w: signer name is required", ErrValidation)
	}
	if strings.TrimSpace(signer.Phone) == "" {
		return fmt.Errorf("%w: signer phone is required", ErrValidation)
	}
	if strings.TrimSpace(signer.Email) == "" {
		return fmt.Errorf("%w: signer email is required", ErrValidation)
	}
	if !emailPattern.MatchString(signer.Email) {
		return fmt.Errorf("%w: signer email is malformed", ErrValidation)
	}
	return nil
}

func nameFromFilename(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
}
