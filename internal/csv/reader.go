// Package csv reads ledger events from, and writes account tables to, CSV.
//
// Input is expected to carry a header row naming the columns type, client, tx
// and amount. Column order is free, amount may be omitted entirely, and rows
// may have fewer cells than the header when their trailing cells are empty.
//
// Any record that cannot be turned into an event is a *ParseError. Callers
// treat it as fatal: the run stops and nothing is written.
package csv

import (
	stdcsv "encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/payments/internal/ledger"
)

// Column names.
const (
	ColType   = "type"
	ColClient = "client"
	ColTx     = "tx"
	ColAmount = "amount"
)

// requiredColumns must be present in the header.
var requiredColumns = []string{ColType, ColClient, ColTx}

// ParseError reports a record that could not be read.
type ParseError struct {
	Line   int
	Column string // empty when the whole record is malformed
	Err    error
}

func (e *ParseError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("line %d: column %q: %v", e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ErrMissingColumns is wrapped by the ParseError returned for a header that
// lacks a required column.
var ErrMissingColumns = errors.New("missing required column")

// Reader yields ledger events from CSV input. It implements ledger.Source
// and ledger.LineReporter.
type Reader struct {
	csv    *stdcsv.Reader
	header HeaderIndex
	places int32
	line   int
	raw    []string
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithAmountPlaces sets the number of fractional digits amounts are rounded to.
func WithAmountPlaces(places int32) ReaderOption {
	return func(r *Reader) {
		if places >= 0 {
			r.places = places
		}
	}
}

// NewReader returns a Reader consuming r. The header is read on the first
// call to Next.
func NewReader(r io.Reader, opts ...ReaderOption) *Reader {
	cr := stdcsv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	rd := &Reader{csv: cr, places: DefaultAmountPlaces}
	for _, opt := range opts {
		opt(rd)
	}
	return rd
}

// Next returns the next event, or io.EOF once the input is exhausted.
// Empty input (no header at all) is an empty stream, not an error.
func (r *Reader) Next() (ledger.Event, error) {
	if r.header == nil {
		if err := r.readHeader(); err != nil {
			return ledger.Event{}, err
		}
	}

	for {
		row, err := r.read()
		if err != nil {
			return ledger.Event{}, err
		}
		if blank(row) {
			continue
		}
		return r.parse(row)
	}
}

// Line returns the input line of the last record returned by Next.
func (r *Reader) Line() int {
	return r.line
}

// Record returns the trimmed cells of the last record returned by Next.
func (r *Reader) Record() []string {
	out := make([]string, len(r.raw))
	for i, c := range r.raw {
		out[i] = CleanCell(c)
	}
	return out
}

func (r *Reader) readHeader() error {
	row, err := r.read()
	if err != nil {
		return err
	}

	idx := MakeHeaderIndex(row)
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &ParseError{
			Line: r.line,
			Err:  fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", ")),
		}
	}

	r.header = idx
	return nil
}

// read returns the next raw row and tracks its line number.
func (r *Reader) read() ([]string, error) {
	row, err := r.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		var perr *stdcsv.ParseError
		if errors.As(err, &perr) {
			return nil, &ParseError{Line: perr.Line, Err: fmt.Errorf("invalid csv: %w", perr.Err)}
		}
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	r.line, _ = r.csv.FieldPos(0)
	r.raw = row
	return row, nil
}

func (r *Reader) parse(row []string) (ledger.Event, error) {
	var ev ledger.Event

	raw, ok := r.header.Cell(row, ColType)
	if !ok || raw == "" {
		return ev, r.fail(ColType, errors.New("required field is empty"))
	}
	kind, err := ledger.ParseKind(raw)
	if err != nil {
		return ev, r.fail(ColType, err)
	}

	raw, ok = r.header.Cell(row, ColClient)
	if !ok || raw == "" {
		return ev, r.fail(ColClient, errors.New("required field is empty"))
	}
	client, err := ParseClient(raw)
	if err != nil {
		return ev, r.fail(ColClient, err)
	}

	raw, ok = r.header.Cell(row, ColTx)
	if !ok || raw == "" {
		return ev, r.fail(ColTx, errors.New("required field is empty"))
	}
	tx, err := ParseTx(raw)
	if err != nil {
		return ev, r.fail(ColTx, err)
	}

	var amount decimal.NullDecimal
	if raw, ok = r.header.Cell(row, ColAmount); ok && raw != "" {
		d, err := ParseAmount(raw, r.places)
		if err != nil {
			return ev, r.fail(ColAmount, err)
		}
		amount = decimal.NewNullDecimal(d)
	}

	return ledger.Event{
		Kind:   kind,
		Client: ledger.ClientID(client),
		Tx:     ledger.TxID(tx),
		Amount: amount,
	}, nil
}

func (r *Reader) fail(column string, err error) error {
	return &ParseError{Line: r.line, Column: column, Err: err}
}

// blank reports whether every cell of row is empty.
func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
