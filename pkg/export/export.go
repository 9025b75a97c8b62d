// Package export turns signed-contract records into operator-facing
// artifacts: a spreadsheet-friendly CSV table and month-grouped ZIP bundles.
// Both operations are pure transformations over the records they are given.
package export

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"signdesk/internal/dataurl"
	"signdesk/pkg/domain"
)

// ErrNothingToExport reports an export over a set with zero eligible
// records. Callers surface it to the operator instead of emitting an empty
// artifact.
var ErrNothingToExport = errors.New("nothing to export")

// utf8BOM makes spreadsheet tools decode the CSV as UTF-8, which matters
// for non-Latin signer names.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var tabularHeader = []string{"Contract ID", "Template Name", "Signer Name", "Phone", "Email", "Signed At"}

const signedAtFormat = "2006-01-02 15:04"

// ToTabular renders the contracts as a CSV table: BOM, fixed header, one
// row per contract in input order, every field quoted.
func ToTabular(contracts []domain.SignedContract) ([]byte, error) {
	if len(contracts) == 0 {
		return nil, fmt.Errorf("tabular export: %w", ErrNothingToExport)
	}
	var b bytes.Buffer
	b.Write(utf8BOM)
	writeRow(&b, tabularHeader)
	for _, c := range contracts {
		writeRow(&b, []string{
			c.ID,
			c.TemplateName,
			c.SignerName,
			c.SignerPhone,
			c.SignerEmail,
			c.SignedAt.Local().Format(signedAtFormat),
		})
	}
	return b.Bytes(), nil
}

// writeRow quotes every field unconditionally. encoding/csv quotes only
// when a field needs it, and the fixed format requires quoting throughout.
func writeRow(b *bytes.Buffer, fields []string) {
	for i, field := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(field, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteString("\r\n")
}

// Archive is a finished ZIP bundle plus bookkeeping about what went in.
type Archive struct {
	Name     string
	Data     []byte
	Included int
	Skipped  int
}

// ToGroupedArchive bundles the contracts' documents into a ZIP whose entries
// all sit under a single Contracts_<groupKey>/ folder. Contracts without a
// decodable document payload are skipped and counted; if nothing remains the
// bundle is not produced.
func ToGroupedArchive(groupKey string, contracts []domain.SignedContract) (Archive, error) {
	archive := Archive{Name: "Contracts_" + groupKey + ".zip"}
	folder := "Contracts_" + groupKey + "/"

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, c := range contracts {
		payload := documentPayload(c.Document)
		if len(payload) == 0 {
			archive.Skipped++
			continue
		}
		w, err := zw.Create(folder + entryName(c))
		if err != nil {
			return Archive{}, fmt.Errorf("create archive entry: %w", err)
		}
		if _, err := w.Write(payload); err != nil {
			return Archive{}, fmt.Errorf("write archive entry: %w", err)
		}
		archive.Included++
	}
	if err := zw.Close(); err != nil {
		return Archive{}, fmt.Errorf("finalize archive: %w", err)
	}
	if archive.Included == 0 {
		return Archive{}, fmt.Errorf("archive export for %s (skipped %d without documents): %w", groupKey, archive.Skipped, ErrNothingToExport)
	}
	archive.Data = buf.Bytes()
	return archive, nil
}

// Group is one calendar month of signed contracts, keyed YYYY-MM.
type Group struct {
	Key       string
	Contracts []domain.SignedContract
}

// GroupByMonth partitions contracts by the local calendar month of their
// signing time. Groups come back newest period first; within a group the
// input order is preserved.
func GroupByMonth(contracts []domain.SignedContract) []Group {
	index := make(map[string]int)
	groups := make([]Group, 0)
	for _, c := range contracts {
		key := c.SignedAt.Local().Format("2006-01")
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key})
		}
		groups[i].Contracts = append(groups[i].Contracts, c)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key > groups[j].Key })
	return groups
}

// TabularFilename names the CSV artifact for the given day.
func TabularFilename(ts time.Time) string {
	return "Contracts_Export_" + ts.Local().Format("2006-01-02") + ".csv"
}

// DownloadFilename names a single-contract PDF download.
func DownloadFilename(c domain.SignedContract) string {
	return sanitizeFilename(c.SignerName) + "_" + sanitizeFilename(c.TemplateName) + ".pdf"
}

// entryName builds the per-contract archive entry. The short id suffix
// keeps entries for same-name signers from colliding.
func entryName(c domain.SignedContract) string {
	return sanitizeFilename(c.SignerName) + "_" + sanitizeFilename(c.TemplateName) + "_" + shortID(c.ID) + ".pdf"
}

func shortID(id string) string {
	if len(id) <= 6 {
		return id
	}
	return id[len(id)-6:]
}

func documentPayload(document string) []byte {
	if document == "" {
		return nil
	}
	_, data, err := dataurl.Parse(document)
	if err != nil {
		return nil
	}
	return data
}

func sanitizeFilename(name string) string {
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
