package memory

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/aussiebroadwan/licensor/internal/license/domain"
	"github.com/aussiebroadwan/licensor/pkg/idx"
)

// Document is the whole data set. Its JSON form is the `{"licenses": [...]}`
// layout the file and redis drivers persist.
type Document struct {
	Licenses []domain.License

	// Unreadable holds rows that did not decode, verbatim. They are encoded
	// again after the readable rows so a rewrite never drops them.
	Unreadable []json.RawMessage
}

// RowError describes one row DecodeDocument could not read.
type RowError struct {
	Index int
	Err   error
}

func (e RowError) Error() string { return fmt.Sprintf("row %d: %v", e.Index, e.Err) }
func (e RowError) Unwrap() error { return e.Err }

type wireDocument struct {
	Licenses []json.RawMessage `json:"licenses"`
}

// DecodeDocument decodes raw row by row. Rows that fail are kept in
// Unreadable and reported; only a document that is not JSON at all is an
// error.
func DecodeDocument(raw []byte) (Document, []RowError, error) {
	var wire wireDocument
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Document{}, nil, err
	}

	var (
		doc     Document
		rowErrs []RowError
	)
	if wire.Licenses != nil {
		doc.Licenses = make([]domain.License, 0, len(wire.Licenses))
	}
	for i, row := range wire.Licenses {
		var l domain.License
		if err := json.Unmarshal(row, &l); err != nil {
			doc.Unreadable = append(doc.Unreadable, row)
			rowErrs = append(rowErrs, RowError{Index: i, Err: err})
			continue
		}
		doc.Licenses = append(doc.Licenses, l)
	}
	return doc, rowErrs, nil
}

func (d *Document) UnmarshalJSON(b []byte) error {
	doc, _, err := DecodeDocument(b)
	if err != nil {
		return err
	}
	*d = doc
	return nil
}

func (d Document) MarshalJSON() ([]byte, error) {
	rows := make([]json.RawMessage, 0, len(d.Licenses)+len(d.Unreadable))
	for _, l := range d.Licenses {
		raw, err := json.Marshal(l)
		if err != nil {
			return nil, err
		}
		rows = append(rows, raw)
	}
	rows = append(rows, d.Unreadable...)
	return json.Marshal(wireDocument{Licenses: rows})
}

// Clone returns a copy that shares no backing storage with d.
func (d Document) Clone() Document {
	return Document{
		Licenses:   slices.Clone(d.Licenses),
		Unreadable: slices.Clone(d.Unreadable),
	}
}

// MissingIDs reports whether a row still lacks an id.
func (d Document) MissingIDs() bool {
	return slices.ContainsFunc(d.Licenses, func(l domain.License) bool { return l.ID == "" })
}

// Normalize gives rows written before records carried ids an id of their
// own, and makes sure the slice is non-nil. It reports whether anything
// changed.
func (d *Document) Normalize() bool {
	changed := false
	if d.Licenses == nil {
		d.Licenses = []domain.License{}
		changed = true
	}
	for i := range d.Licenses {
		if d.Licenses[i].ID == "" {
			d.Licenses[i].ID = idx.New().String()
			changed = true
		}
	}
	return changed
}
