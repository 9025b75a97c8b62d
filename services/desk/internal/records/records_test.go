package records

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"signdesk/pkg/domain"
	"signdesk/services/desk/internal/kvstore"
)

func mustOpenKV(t *testing.T, path string, quota int64) *kvstore.KV {
	t.Helper()
	kv, err := kvstore.Open(path, quota)
	if err != nil {
		t.Fatalf("open kv store: %v", err)
	}
	return kv
}

func TestListTemplatesSeedsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "desk.db")
	st := New(mustOpenKV(t, path, kvstore.DefaultQuotaBytes))

	first, err := st.ListTemplates()
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("len(templates) = %d, want 3", len(first))
	}
	wantNames := []string{"Membership Agreement", "Liability Waiver", "Personal Training Agreement"}
	wantCategories := []domain.Category{domain.CategoryMembership, domain.CategoryWaiver, domain.CategoryPTAgreement}
	for i, tpl := range first {
		if tpl.Name != wantNames[i] {
			t.Errorf("templates[%d].Name = %q, want %q", i, tpl.Name, wantNames[i])
		}
		if tpl.Category != wantCategories[i] {
			t.Errorf("templates[%d].Category = %q, want %q", i, tpl.Category, wantCategories[i])
		}
		if tpl.ID == "" {
			t.Errorf("templates[%d].ID is empty", i)
		}
	}
	if !first[0].CreatedAt.After(first[1].CreatedAt) || !first[1].CreatedAt.After(first[2].CreatedAt) {
		t.Fatalf("seeded templates are not newest first: %v, %v, %v",
			first[0].CreatedAt, first[1].CreatedAt, first[2].CreatedAt)
	}

	// A second store over the same file must see the persisted samples,
	// not seed a fresh set.
	again, err := New(mustOpenKV(t, path, kvstore.DefaultQuotaBytes)).ListTemplates()
	if err != nil {
		t.Fatalf("ListTemplates after reopen: %v", err)
	}
	if len(again) != 3 {
		t.Fatalf("len(templates) after reopen = %d, want 3", len(again))
	}
	for i := range again {
		if again[i].ID != first[i].ID {
			t.Fatalf("templates[%d].ID = %q after reopen, want %q", i, again[i].ID, first[i].ID)
		}
	}
}

func TestAddTemplatePrepends(t *testing.T) {
	st := New(mustOpenKV(t, filepath.Join(t.TempDir(), "desk.db"), kvstore.DefaultQuotaBytes))
	if _, err := st.ListTemplates(); err != nil {
		t.Fatalf("seed: %v", err)
	}

	record, err := st.AddTemplate(domain.Template{Name: "Corporate Plan", Category: "membership"})
	if err != nil {
		t.Fatalf("AddTemplate: %v", err)
	}
	if record.ID == "" {
		t.Fatal("AddTemplate left ID empty")
	}
	if record.Category != domain.CategoryMembership {
		t.Fatalf("Category = %q, want %q", record.Category, domain.CategoryMembership)
	}
	if record.CreatedAt.IsZero() || record.CreatedAt.Location() != time.UTC {
		t.Fatalf("CreatedAt = %v, want a UTC timestamp", record.CreatedAt)
	}

	templates, err := st.ListTemplates()
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	if len(templates) != 4 {
		t.Fatalf("len(templates) = %d, want 4", len(templates))
	}
	if templates[0].ID != record.ID {
		t.Fatalf("templates[0].ID = %q, want the new record %q", templates[0].ID, record.ID)
	}
}

func TestAddTemplateDropsSourceOnQuota(t *testing.T) {
	// Measure how much space the seeded collection plus one slim record
	// needs, then rerun against a quota with just enough headroom for the
	// slim shape but nowhere near enough for the source document.
	probeKV := mustOpenKV(t, filepath.Join(t.TempDir(), "desk.db"), kvstore.DefaultQuotaBytes)
	probe := New(probeKV)
	if _, err := probe.ListTemplates(); err != nil {
		t.Fatalf("seed probe store: %v", err)
	}
	if _, err := probe.AddTemplate(domain.Template{Name: "Corporate Plan", Category: "membership"}); err != nil {
		t.Fatalf("probe AddTemplate: %v", err)
	}
	needed, err := probeKV.Usage()
	if err != nil {
		t.Fatalf("probe usage: %v", err)
	}

	// Timestamp encoding length drifts a few bytes between runs.
	st := New(mustOpenKV(t, filepath.Join(t.TempDir(), "desk.db"), needed+128))
	if _, err := st.ListTemplates(); err != nil {
		t.Fatalf("seed: %v", err)
	}

	fat := "data:application/pdf;base64," + strings.Repeat("QUJD", 4096)
	record, err := st.AddTemplate(domain.Template{
		Name:           "Corporate Plan",
		Category:       "membership",
		SourceDocument: fat,
	})
	if err != nil {
		t.Fatalf("AddTemplate = %v, want a slimmed record", err)
	}
	if record.SourceDocument != "" {
		t.Fatal("SourceDocument survived the quota retry, want it dropped")
	}

	templates, err := st.ListTemplates()
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	if templates[0].ID != record.ID {
		t.Fatalf("templates[0].ID = %q, want %q", templates[0].ID, record.ID)
	}
	if templates[0].SourceDocument != "" {
		t.Fatal("stored record kept its source document, want it dropped")
	}
}

func TestAddTemplateSurfacesQuotaWhenSlimAlsoFails(t *testing.T) {
	probeKV := mustOpenKV(t, filepath.Join(t.TempDir(), "desk.db"), kvstore.DefaultQuotaBytes)
	if _, err := New(probeKV).ListTemplates(); err != nil {
		t.Fatalf("seed probe store: %v", err)
	}
	seeded, err := probeKV.Usage()
	if err != nil {
		t.Fatalf("probe usage: %v", err)
	}

	st := New(mustOpenKV(t, filepath.Join(t.TempDir(), "desk.db"), seeded+256))
	before, err := st.ListTemplates()
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	// The over-long name keeps even the slimmed retry over quota.
	_, err = st.AddTemplate(domain.Template{
		Name:           strings.Repeat("N", 4096),
		Category:       "waiver",
		SourceDocument: "data:application/pdf;base64," + strings.Repeat("QUJD", 4096),
	})
	if !errors.Is(err, kvstore.ErrQuotaExceeded) {
		t.Fatalf("AddTemplate error = %v, want kvstore.ErrQuotaExceeded", err)
	}

	after, err := st.ListTemplates()
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("len(templates) = %d after failed add, want %d", len(after), len(before))
	}
	for i := range after {
		if after[i].ID != before[i].ID {
			t.Fatalf("templates[%d].ID = %q after failed add, want %q", i, after[i].ID, before[i].ID)
		}
	}
}

func TestAddContractAssignsIdentity(t *testing.T) {
	st := New(mustOpenKV(t, filepath.Join(t.TempDir(), "desk.db"), kvstore.DefaultQuotaBytes))

	record, err := st.AddContract(domain.SignedContract{
		TemplateID:   "tpl-1",
		TemplateName: "Membership Agreement",
		SignerName:   "Hong Gildong",
		SignerPhone:  "010-1234-5678",
		SignerEmail:  "hong@example.com",
		Document:     "data:application/pdf;base64,JVBERg==",
	})
	if err != nil {
		t.Fatalf("AddContract: %v", err)
	}
	if record.ID == "" {
		t.Fatal("AddContract left ID empty")
	}
	if record.Status != domain.StatusSent {
		t.Fatalf("Status = %q, want %q", record.Status, domain.StatusSent)
	}
	if record.SignedAt.IsZero() {
		t.Fatal("SignedAt not defaulted")
	}
	if time.Since(record.SignedAt) > time.Minute {
		t.Fatalf("SignedAt = %v, want roughly now", record.SignedAt)
	}

	signedAt := time.Date(2024, 5, 14, 9, 30, 0, 0, time.Local)
	preset, err := st.AddContract(domain.SignedContract{
		TemplateName: "Liability Waiver",
		SignerName:   "Kim Cheolsu",
		SignedAt:     signedAt,
		Document:     "data:application/pdf;base64,JVBERg==",
	})
	if err != nil {
		t.Fatalf("AddContract with SignedAt: %v", err)
	}
	if !preset.SignedAt.Equal(signedAt) {
		t.Fatalf("SignedAt = %v, want preserved %v", preset.SignedAt, signedAt)
	}

	contracts, err := st.ListContracts()
	if err != nil {
		t.Fatalf("ListContracts: %v", err)
	}
	if len(contracts) != 2 {
		t.Fatalf("len(contracts) = %d, want 2", len(contracts))
	}
	if contracts[0].ID != preset.ID {
		t.Fatalf("contracts[0].ID = %q, want the latest record %q", contracts[0].ID, preset.ID)
	}
}

func TestSearchContracts(t *testing.T) {
	st := New(mustOpenKV(t, filepath.Join(t.TempDir(), "desk.db"), kvstore.DefaultQuotaBytes))
	seed := []domain.SignedContract{
		{TemplateName: "Membership Agreement", SignerName: "Hong Gildong", SignerPhone: "010-1234-5678"},
		{TemplateName: "Liability Waiver", SignerName: "Kim Cheolsu", SignerPhone: "010-9876-5432"},
		{TemplateName: "Personal Training Agreement", SignerName: "Lee Younghee", SignerPhone: "02-555-0101"},
	}
	for _, c := range seed {
		if _, err := st.AddContract(c); err != nil {
			t.Fatalf("AddContract(%q): %v", c.SignerName, err)
		}
	}

	tests := []struct {
		name    string
		query   string
		signers []string
	}{
		{"empty returns all", "", []string{"Lee Younghee", "Kim Cheolsu", "Hong Gildong"}},
		{"signer name ignores case", "hong", []string{"Hong Gildong"}},
		{"template name ignores case", "WAIVER", []string{"Kim Cheolsu"}},
		{"phone substring", "9876", []string{"Kim Cheolsu"}},
		{"phone prefix matches several", "010-", []string{"Kim Cheolsu", "Hong Gildong"}},
		{"surrounding spaces trimmed", "  gildong  ", []string{"Hong Gildong"}},
		{"no match", "zzz", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := st.SearchContracts(tt.query)
			if err != nil {
				t.Fatalf("SearchContracts(%q): %v", tt.query, err)
			}
			if len(got) != len(tt.signers) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.signers))
			}
			for i, c := range got {
				if c.SignerName != tt.signers[i] {
					t.Errorf("result[%d].SignerName = %q, want %q", i, c.SignerName, tt.signers[i])
				}
			}
		})
	}
}

func TestMarkContractCompleted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "desk.db")
	st := New(mustOpenKV(t, path, kvstore.DefaultQuotaBytes))

	record, err := st.AddContract(domain.SignedContract{
		TemplateName: "Membership Agreement",
		SignerName:   "Hong Gildong",
		Document:     "data:application/pdf;base64,JVBERg==",
	})
	if err != nil {
		t.Fatalf("AddContract: %v", err)
	}

	if err := st.MarkContractCompleted(record.ID); err != nil {
		t.Fatalf("MarkContractCompleted: %v", err)
	}
	got, found, err := st.GetContract(record.ID)
	if err != nil || !found {
		t.Fatalf("GetContract = (%v, %v), want found", found, err)
	}
	if got.Status != domain.StatusCompleted {
		t.Fatalf("Status = %q, want %q", got.Status, domain.StatusCompleted)
	}
	if got.Document != record.Document {
		t.Fatal("document payload changed on status transition")
	}

	// Marking twice is a no-op, not an error.
	if err := st.MarkContractCompleted(record.ID); err != nil {
		t.Fatalf("second MarkContractCompleted: %v", err)
	}

	if err := st.MarkContractCompleted("missing-id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("MarkContractCompleted(missing) = %v, want ErrNotFound", err)
	}

	// The transition must survive a reopen.
	reopened, found, err := New(mustOpenKV(t, path, kvstore.DefaultQuotaBytes)).GetContract(record.ID)
	if err != nil || !found {
		t.Fatalf("GetContract after reopen = (%v, %v), want found", found, err)
	}
	if reopened.Status != domain.StatusCompleted {
		t.Fatalf("Status after reopen = %q, want %q", reopened.Status, domain.StatusCompleted)
	}
}

func TestGetTemplate(t *testing.T) {
	st := New(mustOpenKV(t, filepath.Join(t.TempDir(), "desk.db"), kvstore.DefaultQuotaBytes))
	templates, err := st.ListTemplates()
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}

	got, found, err := st.GetTemplate(templates[1].ID)
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if !found {
		t.Fatal("GetTemplate found = false, want true")
	}
	if got.Name != templates[1].Name {
		t.Fatalf("Name = %q, want %q", got.Name, templates[1].Name)
	}

	if _, found, err := st.GetTemplate("missing-id"); err != nil || found {
		t.Fatalf("GetTemplate(missing) = (%v, %v), want (false, nil)", found, err)
	}
}
