// Command exportctl writes the contract export artifacts straight from the
// desk's local store, for backups when the desk API is not running.
//
// Usage:
//
//	exportctl -data ./data/desk.db                 # CSV of every contract
//	exportctl -data ./data/desk.db -list           # list archive months
//	exportctl -data ./data/desk.db -month 2024-06  # ZIP for one month
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"signdesk/pkg/domain"
	"signdesk/pkg/export"
	"signdesk/services/desk/internal/kvstore"
	"signdesk/services/desk/internal/records"
)

func main() {
	dataPath := flag.String("data", "./data/desk.db", "path to the desk store file")
	outDir := flag.String("out", ".", "directory to write the artifact into")
	month := flag.String("month", "", "write the ZIP archive for this YYYY-MM instead of the CSV")
	list := flag.Bool("list", false, "list the archive months and exit")
	flag.Parse()

	if err := run(os.Stdout, *dataPath, *outDir, *month, *list); err != nil {
		fmt.Fprintf(os.Stderr, "exportctl: %v\n", err)
		os.Exit(1)
	}
}

func run(out *os.File, dataPath, outDir, month string, list bool) error {
	if _, err := os.Stat(dataPath); err != nil {
		return fmt.Errorf("store file: %w", err)
	}
	kv, err := kvstore.Open(dataPath, 0)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	store := records.New(kv)
	contracts, err := store.ListContracts()
	if err != nil {
		return fmt.Errorf("load contracts: %w", err)
	}

	if list {
		for _, group := range export.GroupByMonth(contracts) {
			fmt.Fprintf(out, "%s\t%d contracts\n", group.Key, len(group.Contracts))
		}
		return nil
	}

	if month != "" {
		return writeArchive(out, outDir, month, contracts)
	}

	data, err := export.ToTabular(contracts)
	if err != nil {
		return err
	}
	return writeArtifact(out, outDir, export.TabularFilename(time.Now()), data)
}

func writeArchive(out *os.File, outDir, month string, contracts []domain.SignedContract) error {
	if _, err := time.Parse("2006-01", month); err != nil {
		return fmt.Errorf("month must look like 2006-01, got %q", month)
	}
	for _, group := range export.GroupByMonth(contracts) {
		if group.Key != month {
			continue
		}
		archive, err := export.ToGroupedArchive(group.Key, group.Contracts)
		if err != nil {
			return err
		}
		if archive.Skipped > 0 {
			fmt.Fprintf(out, "skipped %d contracts without documents\n", archive.Skipped)
		}
		return writeArtifact(out, outDir, archive.Name, archive.Data)
	}
	return fmt.Errorf("no contracts signed in %s: %w", month, export.ErrNothingToExport)
}

func writeArtifact(out *os.File, outDir, name string, data []byte) error {
	path := filepath.Join(outDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	fmt.Fprintf(out, "wrote %s (%d bytes)\n", path, len(data))
	return nil
}
