package xlsx

import "errors"

// Sentinel kinds for workbook store errors.
var (
	ErrNoPath    = errors.New("workbook path must not be empty")
	ErrSheetName = errors.New("resource name is not a valid sheet name")
)
