package app

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"whatsapp-campaign-launcher/internal/domain"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

const utf8BOM = "\xEF\xBB\xBF"

// PreviewRows is how many leading rows an upload echoes back.
const PreviewRows = 5

// ParsedCSV is the header row plus every data row keyed by header.
type ParsedCSV struct {
	Headers []string
	Rows    []domain.Row
}

// ParseCSV decodes data from the declared charset into UTF-8, dropping
// invalid sequences and a leading byte-order mark, and reads the first record
// as the header. Unknown or empty charsets are treated as UTF-8.
func ParseCSV(data []byte, charset string) (ParsedCSV, error) {
	text := decodeToUTF8(data, charset)
	text = strings.TrimPrefix(text, utf8BOM)

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	headers, err := r.Read()
	if errors.Is(err, io.EOF) {
		return ParsedCSV{}, domain.ErrEmptyDataset
	}
	if err != nil {
		return ParsedCSV{}, fmt.Errorf("%w: %v", domain.ErrInvalidCSV, err)
	}

	var rows []domain.Row
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ParsedCSV{}, fmt.Errorf("%w: %v", domain.ErrInvalidCSV, err)
		}

		row := make(domain.Row, len(headers))
		for i, h := range headers {
			if i < len(rec) {
				row[h] = rec[i]
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return ParsedCSV{}, domain.ErrEmptyDataset
	}
	return ParsedCSV{Headers: headers, Rows: rows}, nil
}

func decodeToUTF8(data []byte, charset string) string {
	if enc := lookupEncoding(charset); enc != nil {
		if out, err := enc.NewDecoder().Bytes(data); err == nil {
			data = out
		}
	}
	data = bytes.TrimPrefix(data, []byte(utf8BOM))
	return strings.ToValidUTF8(string(data), "")
}

func lookupEncoding(charset string) encoding.Encoding {
	charset = strings.TrimSpace(charset)
	if charset == "" {
		return nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil
	}
	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		return nil
	}
	return enc
}
