package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoSlugColumn is returned when an export has no recognisable slug header.
var ErrNoSlugColumn = errors.New("catalog: slug column not found")

var slugColumns = []string{"slug", "product_slug", "handle"}

// ParseCSV reads a catalog export into an Index. Header cells are kept
// verbatim so spacing variants of the MRP column stay distinguishable.
func ParseCSV(r io.Reader) (Index, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = false

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Index{}, nil
		}
		return nil, fmt.Errorf("catalog: read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	slugAt := -1
	for _, want := range slugColumns {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), want) {
				slugAt = i
				break
			}
		}
		if slugAt >= 0 {
			break
		}
	}
	if slugAt < 0 {
		return nil, ErrNoSlugColumn
	}

	idx := Index{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("catalog: read row: %w", err)
		}
		if slugAt >= len(record) {
			continue
		}
		slug := strings.TrimSpace(record[slugAt])
		if slug == "" {
			continue
		}
		row := make(Row, len(header))
		for i, h := range header {
			if i < len(record) {
				row[h] = record[i]
			}
		}
		idx[slug] = row
	}
	return idx, nil
}
