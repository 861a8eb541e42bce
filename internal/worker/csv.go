package worker

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ignite/audience-core/internal/domain"
)

// ErrInvalidCSV is returned for files that cannot be read as a contact list.
var ErrInvalidCSV = errors.New("invalid csv")

// ReadContacts parses a CSV whose header row names the attribute keys.
// Blank rows are skipped, short rows leave the trailing attributes absent and
// cells beyond the header are ignored. Empty cells are absent attributes.
func ReadContacts(r io.Reader) ([]domain.Attributes, error) {
	cr := csv.NewReader(bufio.NewReaderSize(r, 1<<20))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: file is empty", ErrInvalidCSV)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}
	keys, err := headerKeys(header)
	if err != nil {
		return nil, err
	}

	var rows []domain.Attributes
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
		}
		attrs := make(domain.Attributes, len(keys))
		for i, cell := range record {
			if i >= len(keys) || keys[i] == "" {
				continue
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			attrs[keys[i]] = parseCell(cell)
		}
		if len(attrs) == 0 {
			continue
		}
		rows = append(rows, attrs)
	}
	return rows, nil
}

func headerKeys(header []string) ([]string, error) {
	keys := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	named := 0
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if seen[h] {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrInvalidCSV, h)
		}
		seen[h] = true
		keys[i] = h
		named++
	}
	if named == 0 {
		return nil, fmt.Errorf("%w: header row has no column names", ErrInvalidCSV)
	}
	return keys, nil
}

// parseCell keeps text as is except ISO-8601 dates, which become date
// attributes so timestamp filters apply to them.
func parseCell(cell string) domain.Scalar {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, cell); err == nil {
			return domain.Time(t)
		}
	}
	return domain.String(cell)
}
