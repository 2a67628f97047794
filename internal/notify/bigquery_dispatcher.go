package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type rowInserter interface {
	InsertRows(ctx context.Context, table string, rows any) error
}

// AlertRow is one fired alert as stored in the audit table.
type AlertRow struct {
	EventID      string    `bigquery:"event_id"`
	OccurredAt   time.Time `bigquery:"occurred_at"`
	OwnerKey     string    `bigquery:"owner_key"`
	ProductID    int64     `bigquery:"product_id"`
	Kind         string    `bigquery:"kind"`
	ProductName  string    `bigquery:"product_name"`
	PriceAdded   string    `bigquery:"price_when_added"`
	CurrentPrice string    `bigquery:"current_price"`
}

// BigQueryDispatcher streams one AlertRow per transition into a table.
type BigQueryDispatcher struct {
	rows  rowInserter
	table string
	now   func() time.Time
}

func NewBigQueryDispatcher(rows rowInserter, table string) (*BigQueryDispatcher, error) {
	if rows == nil {
		return nil, errors.New("row inserter is required")
	}
	if table == "" {
		return nil, errors.New("table is required")
	}
	return &BigQueryDispatcher{rows: rows, table: table, now: time.Now}, nil
}

func (d *BigQueryDispatcher) Dispatch(ctx context.Context, ownerKey string, transition Transition) error {
	row := AlertRow{
		EventID:      uuid.NewString(),
		OccurredAt:   d.now().UTC(),
		OwnerKey:     ownerKey,
		ProductID:    transition.ProductID,
		Kind:         string(transition.Kind),
		ProductName:  transition.ProductName,
		PriceAdded:   transition.PriceWhenAdded.String(),
		CurrentPrice: transition.CurrentPrice.String(),
	}
	if err := d.rows.InsertRows(ctx, d.table, []AlertRow{row}); err != nil {
		return fmt.Errorf("insert %s alert row: %w", transition.Kind, err)
	}
	return nil
}
