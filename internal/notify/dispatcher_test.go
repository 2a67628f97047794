package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nlenjibi/storefront-wishlist/pkg/enums"
	"github.com/nlenjibi/storefront-wishlist/pkg/logger"
	"github.com/shopspring/decimal"
)

type stubPublisher struct {
	topic string
	data  []byte
	attrs map[string]string
	err   error
}

func (s *stubPublisher) Publish(_ context.Context, topic string, data []byte, attrs map[string]string) (string, error) {
	s.topic = topic
	s.data = data
	s.attrs = attrs
	return "msg-1", s.err
}

func TestPubSubDispatcherPublishesEnvelope(t *testing.T) {
	pub := &stubPublisher{}
	dispatcher, err := NewPubSubDispatcher(pub, "wishlist-alerts")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	dispatcher.now = func() time.Time { return fixed }

	transition := Transition{Kind: enums.NotificationKindPriceDrop, ProductID: 7, CurrentPrice: decimal.NewFromInt(12)}
	if err := dispatcher.Dispatch(context.Background(), "user-1", transition); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	if pub.topic != "wishlist-alerts" {
		t.Fatalf("unexpected topic %q", pub.topic)
	}
	var envelope AlertEnvelope
	if err := json.Unmarshal(pub.data, &envelope); err != nil {
		t.Fatalf("payload is not an envelope: %v", err)
	}
	if envelope.OwnerKey != "user-1" || envelope.Data.ProductID != 7 || !envelope.OccurredAt.Equal(fixed) {
		t.Fatalf("unexpected envelope %+v", envelope)
	}
	if pub.attrs["kind"] != "price_drop" || pub.attrs["event_id"] != envelope.EventID {
		t.Fatalf("unexpected attributes %v", pub.attrs)
	}
}

func TestNewPubSubDispatcherValidates(t *testing.T) {
	if _, err := NewPubSubDispatcher(nil, "topic"); err == nil {
		t.Fatalf("expected missing publisher error")
	}
	if _, err := NewPubSubDispatcher(&stubPublisher{}, ""); err == nil {
		t.Fatalf("expected missing topic error")
	}
}

type failingDispatcher struct{ calls int }

func (f *failingDispatcher) Dispatch(context.Context, string, Transition) error {
	f.calls++
	return errors.New("smtp down")
}

func TestMultiDispatcherReachesEveryone(t *testing.T) {
	buf := &bytes.Buffer{}
	logDispatcher := NewLogDispatcher(logger.New(logger.Options{ServiceName: "test", Output: buf}))
	failing := &failingDispatcher{}

	multi := MultiDispatcher{failing, nil, logDispatcher}
	err := multi.Dispatch(context.Background(), "guest-1", Transition{Kind: enums.NotificationKindBackInStock, ProductID: 3})
	if err == nil {
		t.Fatalf("expected combined error")
	}
	if failing.calls != 1 {
		t.Fatalf("expected failing dispatcher to be called once")
	}
	if !bytes.Contains(buf.Bytes(), []byte("wishlist notification fired")) {
		t.Fatalf("expected log dispatcher to run after a failure; log=%s", buf.String())
	}
}

type stubRows struct {
	table string
	rows  any
	err   error
}

func (s *stubRows) InsertRows(_ context.Context, table string, rows any) error {
	s.table = table
	s.rows = rows
	return s.err
}

func TestBigQueryDispatcherInsertsAlertRow(t *testing.T) {
	rows := &stubRows{}
	dispatcher, err := NewBigQueryDispatcher(rows, "alert_events")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	dispatcher.now = func() time.Time { return fixed }

	transition := Transition{
		Kind:           enums.NotificationKindBackInStock,
		ProductID:      3,
		ProductName:    "Kettle",
		PriceWhenAdded: decimal.NewFromInt(40),
		CurrentPrice:   decimal.NewFromInt(35),
	}
	if err := dispatcher.Dispatch(context.Background(), "user-1", transition); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if rows.table != "alert_events" {
		t.Fatalf("unexpected table %q", rows.table)
	}
	inserted, ok := rows.rows.([]AlertRow)
	if !ok || len(inserted) != 1 {
		t.Fatalf("expected one alert row, got %#v", rows.rows)
	}
	row := inserted[0]
	if row.OwnerKey != "user-1" || row.ProductID != 3 || row.Kind != string(enums.NotificationKindBackInStock) {
		t.Fatalf("unexpected row %+v", row)
	}
	if row.CurrentPrice != "35" || row.PriceAdded != "40" || !row.OccurredAt.Equal(fixed) || row.EventID == "" {
		t.Fatalf("unexpected row values %+v", row)
	}
}

func TestBigQueryDispatcherWrapsInsertError(t *testing.T) {
	dispatcher, _ := NewBigQueryDispatcher(&stubRows{err: errors.New("quota")}, "alert_events")
	if err := dispatcher.Dispatch(context.Background(), "user-1", Transition{Kind: enums.NotificationKindPriceDrop}); err == nil {
		t.Fatal("expected insert error")
	}
	if _, err := NewBigQueryDispatcher(nil, "alert_events"); err == nil {
		t.Fatal("expected error without inserter")
	}
}
