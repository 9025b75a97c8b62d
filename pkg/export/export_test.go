package export

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"signdesk/internal/dataurl"
	"signdesk/pkg/domain"
)

func contractAt(id, signer, template string, signedAt time.Time, withDocument bool) domain.SignedContract {
	c := domain.SignedContract{
		ID:           id,
		TemplateID:   "tpl-1",
		TemplateName: template,
		SignerName:   signer,
		SignerPhone:  "010-1234-5678",
		SignerEmail:  "signer@example.com",
		SignedAt:     signedAt,
		Status:       domain.StatusSent,
	}
	if withDocument {
		c.Document = dataurl.Format(dataurl.MediaTypePDF, []byte("%PDF-fake-"+id))
	}
	return c
}

func TestToTabularQuotesEveryField(t *testing.T) {
	signedAt := time.Date(2024, 5, 14, 9, 30, 0, 0, time.Local)
	contracts := []domain.SignedContract{
		contractAt("contract-0001", `Kim "Tiger" Cheolsu`, "Membership, Annual", signedAt, true),
	}

	out, err := ToTabular(contracts)
	if err != nil {
		t.Fatalf("ToTabular: %v", err)
	}
	if !bytes.HasPrefix(out, []byte{0xEF, 0xBB, 0xBF}) {
		t.Fatal("output missing UTF-8 BOM prefix")
	}

	lines := strings.Split(strings.TrimRight(string(out[3:]), "\r\n"), "\r\n")
	if len(lines) != 2 {
		t.Fatalf("line count = %d, want 2", len(lines))
	}
	if want := `"Contract ID","Template Name","Signer Name","Phone","Email","Signed At"`; lines[0] != want {
		t.Fatalf("header = %s, want %s", lines[0], want)
	}
	row := lines[1]
	if !strings.Contains(row, `"Kim ""Tiger"" Cheolsu"`) {
		t.Fatalf("embedded quotes not doubled: %s", row)
	}
	if !strings.Contains(row, `"Membership, Annual"`) {
		t.Fatalf("comma-bearing field not quoted intact: %s", row)
	}
	if !strings.Contains(row, `"2024-05-14 09:30"`) {
		t.Fatalf("signed-at not formatted: %s", row)
	}
	if !strings.HasPrefix(row, `"contract-0001"`) {
		t.Fatalf("id field not quoted: %s", row)
	}
}

func TestToTabularEmptyInput(t *testing.T) {
	if _, err := ToTabular(nil); !errors.Is(err, ErrNothingToExport) {
		t.Fatalf("error = %v, want ErrNothingToExport", err)
	}
}

func TestToGroupedArchive(t *testing.T) {
	signedAt := time.Date(2024, 5, 2, 14, 0, 0, 0, time.Local)
	contracts := []domain.SignedContract{
		contractAt("aaaa-bbbb-cccc-111111", "Hong Gildong", "Membership Agreement", signedAt, true),
		contractAt("aaaa-bbbb-cccc-222222", "Kim Cheolsu", "Liability Waiver", signedAt, true),
		contractAt("aaaa-bbbb-cccc-333333", "Lee Younghee", "Membership Agreement", signedAt, false),
	}

	archive, err := ToGroupedArchive("2024-05", contracts)
	if err != nil {
		t.Fatalf("ToGroupedArchive: %v", err)
	}
	if archive.Name != "Contracts_2024-05.zip" {
		t.Fatalf("archive name = %q", archive.Name)
	}
	if archive.Included != 2 || archive.Skipped != 1 {
		t.Fatalf("included/skipped = %d/%d, want 2/1", archive.Included, archive.Skipped)
	}

	zr, err := zip.NewReader(bytes.NewReader(archive.Data), int64(len(archive.Data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("entry count = %d, want 2", len(zr.File))
	}
	wantNames := map[string]string{
		"Contracts_2024-05/Hong Gildong_Membership Agreement_111111.pdf": "%PDF-fake-aaaa-bbbb-cccc-111111",
		"Contracts_2024-05/Kim Cheolsu_Liability Waiver_222222.pdf":      "%PDF-fake-aaaa-bbbb-cccc-222222",
	}
	for _, f := range zr.File {
		wantBody, ok := wantNames[f.Name]
		if !ok {
			t.Fatalf("unexpected entry %q", f.Name)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open entry: %v", err)
		}
		var body bytes.Buffer
		if _, err := body.ReadFrom(rc); err != nil {
			t.Fatalf("read entry: %v", err)
		}
		rc.Close()
		if body.String() != wantBody {
			t.Fatalf("entry %q body = %q, want %q", f.Name, body.String(), wantBody)
		}
	}
}

func TestToGroupedArchiveNothingEligible(t *testing.T) {
	signedAt := time.Date(2024, 5, 2, 14, 0, 0, 0, time.Local)
	contracts := []domain.SignedContract{
		contractAt("id-1", "Hong Gildong", "Membership Agreement", signedAt, false),
	}
	if _, err := ToGroupedArchive("2024-05", contracts); !errors.Is(err, ErrNothingToExport) {
		t.Fatalf("error = %v, want ErrNothingToExport", err)
	}
	if _, err := ToGroupedArchive("2024-05", nil); !errors.Is(err, ErrNothingToExport) {
		t.Fatalf("empty input error = %v, want ErrNothingToExport", err)
	}
}

func TestGroupByMonthNewestFirst(t *testing.T) {
	may1 := contractAt("m1", "Hong Gildong", "Membership Agreement", time.Date(2024, 5, 2, 10, 0, 0, 0, time.Local), true)
	may2 := contractAt("m2", "Kim Cheolsu", "Liability Waiver", time.Date(2024, 5, 20, 10, 0, 0, 0, time.Local), true)
	jun := contractAt("j1", "Lee Younghee", "Membership Agreement", time.Date(2024, 6, 3, 10, 0, 0, 0, time.Local), true)

	groups := GroupByMonth([]domain.SignedContract{may1, jun, may2})
	if len(groups) != 2 {
		t.Fatalf("group count = %d, want 2", len(groups))
	}
	if groups[0].Key != "2024-06" || groups[1].Key != "2024-05" {
		t.Fatalf("group keys = [%s %s], want [2024-06 2024-05]", groups[0].Key, groups[1].Key)
	}
	if len(groups[0].Contracts) != 1 || groups[0].Contracts[0].ID != "j1" {
		t.Fatalf("2024-06 contents wrong: %+v", groups[0].Contracts)
	}
	if len(groups[1].Contracts) != 2 || groups[1].Contracts[0].ID != "m1" || groups[1].Contracts[1].ID != "m2" {
		t.Fatalf("2024-05 contents wrong: %+v", groups[1].Contracts)
	}
}

func TestArtifactNames(t *testing.T) {
	ts := time.Date(2024, 6, 1, 8, 0, 0, 0, time.Local)
	if got := TabularFilename(ts); got != "Contracts_Export_2024-06-01.csv" {
		t.Fatalf("TabularFilename = %q", got)
	}
	c := domain.SignedContract{SignerName: "Hong/Gildong", TemplateName: `Member "Gold"`}
	if got := DownloadFilename(c); got != `Hong_Gildong_Member _Gold_.pdf` {
		t.Fatalf("DownloadFilename = %q", got)
	}
}
