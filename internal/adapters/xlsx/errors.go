package xlsx

import "errors"

var (
	// ErrMissingSheet means a required sheet is absent from the workbook.
	ErrMissingSheet = errors.New("missing sheet")
	// ErrEmptySheet means a required sheet has no header row.
	ErrEmptySheet = errors.New("empty sheet")
	// ErrMissingColumn means a sheet lacks a required header column.
	ErrMissingColumn = errors.New("missing column")
)
