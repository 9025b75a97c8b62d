// Package records owns the canonical template and contract collections.
// Both are persisted whole as JSON arrays under stable keys in the desk's
// local key-value store; every read hands back fresh copies, and records are
// never mutated in place.
package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"signdesk/pkg/domain"
	"signdesk/services/desk/internal/kvstore"
)

// Stable collection keys in the KV store.
const (
	templatesKey = "signdesk.templates"
	contractsKey = "signdesk.contracts"
)

// ErrNotFound reports a lookup or update against an id that is not in the
// collection.
var ErrNotFound = errors.New("record not found")

// Store is the single owner of the persisted collections. It must be
// constructed with New and passed to every consumer; there is no package
// level instance.
type Store struct {
	mu sync.Mutex
	kv *kvstore.KV
}

// New wires the store to its durable backing. Sample seeding happens on the
// first template read, not here.
func New(kv *kvstore.KV) *Store {
	return &Store{kv: kv}
}

// ListTemplates returns the templates newest first. The first-ever read of
// an empty store seeds and persists the sample set so the dashboard is
// never blank on a fresh install.
func (s *Store) ListTemplates() ([]domain.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.templatesSeeded()
}

// GetTemplate looks up one template by id.
func (s *Store) GetTemplate(id string) (domain.Template, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	templates, err := s.templatesSeeded()
	if err != nil {
		return domain.Template{}, false, err
	}
	for _, tpl := range templates {
		if tpl.ID == id {
			return tpl, true, nil
		}
	}
	return domain.Template{}, false, nil
}

// AddTemplate assigns identity and creation time, prepends the record, and
// persists the collection. When the write exhausts the storage quota it is
// retried once with the large source document dropped from the new record;
// if even that fails the error is surfaced and the stored collection stays
// as it was.
func (s *Store) AddTemplate(draft domain.Template) (domain.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	templates, err := s.templatesSeeded()
	if err != nil {
		return domain.Template{}, err
	}

	record := draft
	record.ID = uuid.NewString()
	record.CreatedAt = time.Now().UTC()
	record.Category = domain.ParseCategory(string(draft.Category))

	if err := s.saveTemplates(prependTemplate(templates, record)); err != nil {
		if !errors.Is(err, kvstore.ErrQuotaExceeded) || record.SourceDocument == "" {
			return domain.Template{}, fmt.Errorf("save templates: %w", err)
		}
		record.SourceDocument = ""
		if err := s.saveTemplates(prependTemplate(templates, record)); err != nil {
			return domain.Template{}, fmt.Errorf("save templates after dropping source: %w", err)
		}
	}
	return record, nil
}

// ListContracts returns the signed contracts newest first.
func (s *Store) ListContracts() ([]domain.SignedContract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	contracts, _, err := s.loadContracts()
	return contracts, err
}

// SearchContracts filters by case-insensitive substring over signer name or
// template name, and by raw substring over the phone field. An empty query
// returns the full collection in order.
func (s *Store) SearchContracts(query string) ([]domain.SignedContract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	contracts, _, err := s.loadContracts()
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return contracts, nil
	}
	needle := strings.ToLower(query)
	matched := make([]domain.SignedContract, 0, len(contracts))
	for _, c := range contracts {
		if strings.Contains(strings.ToLower(c.SignerName), needle) ||
			strings.Contains(strings.ToLower(c.TemplateName), needle) ||
			strings.Contains(c.SignerPhone, query) {
			matched = append(matched, c)
		}
	}
	return matched, nil
}

// GetContract looks up one signed contract by id.
func (s *Store) GetContract(id string) (domain.SignedContract, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	contracts, _, err := s.loadContracts()
	if err != nil {
		return domain.SignedContract{}, false, err
	}
	for _, c := range contracts {
		if c.ID == id {
			return c, true, nil
		}
	}
	return domain.SignedContract{}, false, nil
}

// AddContract assigns identity and the initial SENT status, prepends the
// record, and persists synchronously before returning. There is no slimming
// fallback here: the document payload is the point of the record.
func (s *Store) AddContract(draft domain.SignedContract) (domain.SignedContract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contracts, _, err := s.loadContracts()
	if err != nil {
		return domain.SignedContract{}, err
	}

	record := draft
	record.ID = uuid.NewString()
	record.Status = domain.StatusSent
	if record.SignedAt.IsZero() {
		record.SignedAt = time.Now()
	}

	next := append([]domain.SignedContract{record}, contracts...)
	if err := s.saveContracts(next); err != nil {
		return domain.SignedContract{}, fmt.Errorf("save contracts: %w", err)
	}
	return record, nil
}

// MarkContractCompleted transitions one record SENT -> COMPLETED and
// persists the collection. Only the status field changes; document bytes
// and the signer snapshot stay untouched. Used when completion marking is
// enabled and the relay confirmed the copy.
func (s *Store) MarkContractCompleted(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	contracts, _, err := s.loadContracts()
	if err != nil {
		return err
	}
	for i, c := range contracts {
		if c.ID != id {
			continue
		}
		if c.Status == domain.StatusCompleted {
			return nil
		}
		contracts[i].Status = domain.StatusCompleted
		if err := s.saveContracts(contracts); err != nil {
			return fmt.Errorf("save contracts: %w", err)
		}
		return nil
	}
	return fmt.Errorf("mark contract %s completed: %w", id, ErrNotFound)
}

// templatesSeeded loads the template collection, seeding the samples when
// no collection has ever been stored. Callers must hold the lock.
func (s *Store) templatesSeeded() ([]domain.Template, error) {
	templates, found, err := s.loadTemplates()
	if err != nil {
		return nil, err
	}
	if found {
		return templates, nil
	}
	seeded := defaultTemplates(time.Now().UTC())
	if err := s.saveTemplates(seeded); err != nil {
		return nil, fmt.Errorf("seed templates: %w", err)
	}
	return seeded, nil
}

func (s *Store) loadTemplates() ([]domain.Template, bool, error) {
	raw, found, err := s.kv.Get(templatesKey)
	if err != nil {
		return nil, false, fmt.Errorf("load templates: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	var templates []domain.Template
	if err := json.Unmarshal([]byte(raw), &templates); err != nil {
		return nil, false, fmt.Errorf("decode templates: %w", err)
	}
	return templates, true, nil
}

func (s *Store) saveTemplates(templates []domain.Template) error {
	raw, err := json.Marshal(templates)
	if err != nil {
		return fmt.Errorf("encode templates: %w", err)
	}
	return s.kv.Put(templatesKey, string(raw))
}

func (s *Store) loadContracts() ([]domain.SignedContract, bool, error) {
	raw, found, err := s.kv.Get(contractsKey)
	if err != nil {
		return nil, false, fmt.Errorf("load contracts: %w", err)
	}
	if !found {
		return []domain.SignedContract{}, false, nil
	}
	var contracts []domain.SignedContract
	if err := json.Unmarshal([]byte(raw), &contracts); err != nil {
		return nil, false, fmt.Errorf("decode contracts: %w", err)
	}
	return contracts, true, nil
}

func (s *Store) saveContracts(contracts []domain.SignedContract) error {
	raw, err := json.Marshal(contracts)
	if err != nil {
		return fmt.Errorf("encode contracts: %w", err)
	}
	return s.kv.Put(contractsKey, string(raw))
}

func prependTemplate(templates []domain.Template, record domain.Template) []domain.Template {
	return append([]domain.Template{record}, templates...)
}
