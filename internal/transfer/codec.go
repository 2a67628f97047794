package transfer

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nlenjibi/storefront-wishlist/internal/wishlist"
	pkgerrors "github.com/nlenjibi/storefront-wishlist/pkg/errors"
	"github.com/shopspring/decimal"
)

// Columns is the CSV header, in order.
var Columns = []string{
	"product_id",
	"name",
	"category",
	"price",
	"priority",
	"quantity",
	"notes",
	"target_price",
	"collection",
	"tags",
	"notify_on_price_drop",
	"notify_on_stock",
	"added_at",
}

const tagSeparator = "|"

// Row is one parsed input row. Err is set when the row could not be decoded;
// such rows are reported by Import instead of aborting the parse.
type Row struct {
	Line   int
	Record Record
	Err    error
}

func ExportCSV(w io.Writer, items []wishlist.Item) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range FromItems(items) {
		if err := cw.Write(toCSV(rec)); err != nil {
			return fmt.Errorf("write csv row %d: %w", rec.ProductID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func ExportJSON(w io.Writer, items []wishlist.Item) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(FromItems(items)); err != nil {
		return fmt.Errorf("encode json export: %w", err)
	}
	return nil
}

// ParseCSV reads a CSV export. Columns are matched by header name, so files
// with reordered or missing optional columns still import.
func ParseCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []Row{}, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read csv header")
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := cols["product_id"]; !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "csv header must include product_id")
	}

	rows := []Row{}
	line := 1
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			rows = append(rows, Row{Line: line, Err: pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed csv row")})
			continue
		}
		rec, err := fromCSV(cols, fields)
		rows = append(rows, Row{Line: line, Record: rec, Err: err})
	}
	return rows, nil
}

// ParseJSON reads a JSON array of records; each element decodes on its own.
func ParseJSON(r io.Reader) ([]Row, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return []Row{}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode json import")
	}
	rows := make([]Row, 0, len(raw))
	for i, msg := range raw {
		var rec Record
		row := Row{Line: i + 1}
		if err := json.Unmarshal(msg, &rec); err != nil {
			row.Err = pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed json record")
		}
		row.Record = rec
		rows = append(rows, row)
	}
	return rows, nil
}

func toCSV(rec Record) []string {
	target := ""
	if rec.TargetPrice != nil {
		target = rec.TargetPrice.String()
	}
	addedAt := ""
	if rec.AddedAt != nil {
		addedAt = rec.AddedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		strconv.FormatInt(rec.ProductID, 10),
		rec.Name,
		rec.Category,
		rec.Price.String(),
		rec.Priority,
		strconv.Itoa(rec.Quantity),
		rec.Notes,
		target,
		rec.Collection,
		strings.Join(rec.Tags, tagSeparator),
		strconv.FormatBool(rec.NotifyOnPriceDrop),
		strconv.FormatBool(rec.NotifyOnStock),
		addedAt,
	}
}

func fromCSV(cols map[string]int, fields []string) (Record, error) {
	get := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(fields) {
			return ""
		}
		return strings.TrimSpace(fields[idx])
	}
	fail := func(column string, err error) (Record, error) {
		return Record{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+column).
			WithDetails(map[string]any{"column": column})
	}

	var rec Record
	var err error
	if rec.ProductID, err = strconv.ParseInt(get("product_id"), 10, 64); err != nil {
		return fail("product_id", err)
	}
	rec.Name = get("name")
	rec.Category = get("category")
	if v := get("price"); v != "" {
		if rec.Price, err = decimal.NewFromString(v); err != nil {
			return fail("price", err)
		}
	}
	rec.Priority = get("priority")
	if v := get("quantity"); v != "" {
		if rec.Quantity, err = strconv.Atoi(v); err != nil {
			return fail("quantity", err)
		}
	}
	rec.Notes = get("notes")
	if v := get("target_price"); v != "" {
		target, err := decimal.NewFromString(v)
		if err != nil {
			return fail("target_price", err)
		}
		rec.TargetPrice = &target
	}
	rec.Collection = get("collection")
	if v := get("tags"); v != "" {
		rec.Tags = strings.Split(v, tagSeparator)
	}
	if v := get("notify_on_price_drop"); v != "" {
		if rec.NotifyOnPriceDrop, err = strconv.ParseBool(v); err != nil {
			return fail("notify_on_price_drop", err)
		}
	}
	if v := get("notify_on_stock"); v != "" {
		if rec.NotifyOnStock, err = strconv.ParseBool(v); err != nil {
			return fail("notify_on_stock", err)
		}
	}
	if v := get("added_at"); v != "" {
		addedAt, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fail("added_at", err)
		}
		rec.AddedAt = &addedAt
	}
	return rec, nil
}
