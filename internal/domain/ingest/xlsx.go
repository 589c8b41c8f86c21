package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/monthlyrank/internal/domain/model"
	"github.com/xuri/excelize/v2"
)

// readWorkbook reads the first sheet of an .xlsx upload. Workbooks carry
// their own encoding, so failures are reported as EncodingError with the
// single candidate "xlsx".
func readWorkbook(content []byte) (Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		if strings.Contains(err.Error(), "zip: not a valid zip file") {
			err = fmt.Errorf("%w (is this a CSV with an .xlsx extension?)", err)
		}
		return Table{}, &model.EncodingError{Tried: []string{"xlsx"}, Last: err}
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, &model.EncodingError{Tried: []string{"xlsx"}, Last: errors.New("workbook has no sheets")}
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Table{}, &model.EncodingError{Tried: []string{"xlsx"}, Last: fmt.Errorf("read sheet %q: %w", sheets[0], err)}
	}
	if len(rows) == 0 {
		return Table{}, &model.EncodingError{Tried: []string{"xlsx"}, Last: fmt.Errorf("sheet %q is empty", sheets[0])}
	}
	return Table{Header: rows[0], Rows: rows[1:]}, nil
}
