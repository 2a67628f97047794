package wishlist

import (
	"testing"
	"time"

	"github.com/nlenjibi/storefront-wishlist/pkg/enums"
	pkgerrors "github.com/nlenjibi/storefront-wishlist/pkg/errors"
	"github.com/shopspring/decimal"
)

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func TestNewItemAppliesDefaults(t *testing.T) {
	item := NewItem(AddRequest{ProductID: 101, Price: decimal.NewFromInt(50), Tags: []string{" gift", "gift", "", "b"}}, testNow)

	if item.Priority != enums.PriorityMedium {
		t.Fatalf("expected default priority MEDIUM, got %s", item.Priority)
	}
	if item.DesiredQuantity != 1 {
		t.Fatalf("expected default quantity 1, got %d", item.DesiredQuantity)
	}
	if !item.PriceWhenAdded.Equal(decimal.NewFromInt(50)) || !item.CurrentPrice.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected both prices to snapshot 50, got %s/%s", item.PriceWhenAdded, item.CurrentPrice)
	}
	if !item.AddedAt.Equal(testNow) {
		t.Fatalf("unexpected addedAt %v", item.AddedAt)
	}
	if len(item.Tags) != 2 || item.Tags[0] != "b" || item.Tags[1] != "gift" {
		t.Fatalf("expected normalised tags, got %v", item.Tags)
	}
	if err := item.Validate(); err != nil {
		t.Fatalf("expected valid item: %v", err)
	}
}

func TestNewItemPreservesCarriedSnapshot(t *testing.T) {
	addedAt := testNow.Add(-72 * time.Hour)
	source := NewItem(AddRequest{ProductID: 7, Price: decimal.NewFromInt(20), Priority: enums.PriorityHigh, CollectionName: ptr("Gifts")}, addedAt)
	source.CurrentPrice = decimal.NewFromInt(18)

	rebuilt := NewItem(RequestFromItem(source), testNow)
	if !rebuilt.AddedAt.Equal(addedAt) {
		t.Fatalf("expected addedAt preserved, got %v", rebuilt.AddedAt)
	}
	if !rebuilt.PriceWhenAdded.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected priceWhenAdded preserved, got %s", rebuilt.PriceWhenAdded)
	}
	if rebuilt.Priority != enums.PriorityHigh || rebuilt.Collection() != "Gifts" {
		t.Fatalf("expected user fields preserved, got %+v", rebuilt)
	}
}

func TestApplyAddKeepsWriteOnceFields(t *testing.T) {
	existing := NewItem(AddRequest{ProductID: 5, Price: decimal.NewFromInt(30), Priority: enums.PriorityUrgent}, testNow)
	updated := ApplyAdd(existing, AddRequest{ProductID: 5, Price: decimal.NewFromInt(10), DesiredQuantity: 3})

	if !updated.PriceWhenAdded.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("priceWhenAdded must be write-once, got %s", updated.PriceWhenAdded)
	}
	if updated.Priority != enums.PriorityUrgent {
		t.Fatalf("repeated add without priority must not reset it, got %s", updated.Priority)
	}
	if updated.DesiredQuantity != 3 {
		t.Fatalf("expected quantity update, got %d", updated.DesiredQuantity)
	}
}

func TestAddRequestValidation(t *testing.T) {
	cases := []struct {
		name  string
		req   AddRequest
		field string
	}{
		{name: "missing product", req: AddRequest{}, field: "productId"},
		{name: "negative quantity", req: AddRequest{ProductID: 1, DesiredQuantity: -2}, field: "desiredQuantity"},
		{name: "negative target", req: AddRequest{ProductID: 1, TargetPrice: ptr(decimal.NewFromInt(-1))}, field: "targetPrice"},
		{name: "unknown priority", req: AddRequest{ProductID: 1, Priority: "SOMEDAY"}, field: "priority"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			typed := pkgerrors.As(err)
			if typed == nil || typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			details, _ := typed.Details().(map[string]any)
			if details["field"] != tc.field {
				t.Fatalf("expected field %s, got %v", tc.field, details)
			}
		})
	}
}

func TestPriceDropPercentHandlesZeroReference(t *testing.T) {
	item := Item{ProductID: 1, PriceWhenAdded: decimal.Zero, CurrentPrice: decimal.NewFromInt(10)}
	if !item.PriceDropPercent().IsZero() {
		t.Fatalf("expected 0%% with zero reference price, got %s", item.PriceDropPercent())
	}

	item = Item{ProductID: 1, PriceWhenAdded: decimal.NewFromInt(100), CurrentPrice: decimal.NewFromInt(80), DesiredQuantity: 2}
	if !item.PriceDropPercent().Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected 20%% drop, got %s", item.PriceDropPercent())
	}
	if !item.Savings().Equal(decimal.NewFromInt(40)) {
		t.Fatalf("expected savings 40, got %s", item.Savings())
	}
	if !item.LineTotal().Equal(decimal.NewFromInt(160)) {
		t.Fatalf("expected line total 160, got %s", item.LineTotal())
	}
}

func TestSavingsNeverNegative(t *testing.T) {
	item := Item{ProductID: 1, PriceWhenAdded: decimal.NewFromInt(10), CurrentPrice: decimal.NewFromInt(12), DesiredQuantity: 1}
	if !item.Savings().IsZero() {
		t.Fatalf("expected zero savings on price increase, got %s", item.Savings())
	}
}

func TestTargetReached(t *testing.T) {
	item := Item{ProductID: 1, CurrentPrice: decimal.NewFromInt(25)}
	if item.TargetReached() {
		t.Fatalf("no target set must never be reached")
	}
	item.TargetPrice = ptr(decimal.NewFromInt(25))
	if !item.TargetReached() {
		t.Fatalf("price equal to target should count as reached")
	}
}

func TestPatchApplyToAndClear(t *testing.T) {
	item := NewItem(AddRequest{ProductID: 9, Price: decimal.NewFromInt(5), CollectionName: ptr("Tech"), TargetPrice: ptr(decimal.NewFromInt(4))}, testNow)

	patched := Patch{ClearCollection: true, ClearTargetPrice: true, Notes: ptr("later")}.ApplyTo(item)
	if patched.CollectionName != nil || patched.TargetPrice != nil {
		t.Fatalf("expected clears to unset optional fields, got %+v", patched)
	}
	if patched.Notes != "later" {
		t.Fatalf("expected notes update, got %q", patched.Notes)
	}
	if item.CollectionName == nil || *item.CollectionName != "Tech" {
		t.Fatalf("ApplyTo must not mutate the original item")
	}

	blank := MoveTo(ptr("   ")).ApplyTo(item)
	if blank.CollectionName != nil {
		t.Fatalf("blank collection names normalise to uncategorised")
	}
}

func TestPatchValidateRejectsContradictions(t *testing.T) {
	patch := Patch{TargetPrice: ptr(decimal.NewFromInt(1)), ClearTargetPrice: true}
	if err := patch.Validate(); err == nil {
		t.Fatalf("expected contradiction to be rejected")
	}
	if !(Patch{}).IsEmpty() {
		t.Fatalf("zero patch should be empty")
	}
	if (Patch{Tags: []string{}}).IsEmpty() {
		t.Fatalf("an empty non-nil tag slice clears tags and is not empty")
	}
}

func TestSortItemsNewestFirst(t *testing.T) {
	items := []Item{
		{ProductID: 3, AddedAt: testNow.Add(-time.Hour)},
		{ProductID: 2, AddedAt: testNow},
		{ProductID: 1, AddedAt: testNow},
	}
	SortItems(items)
	if items[0].ProductID != 1 || items[1].ProductID != 2 || items[2].ProductID != 3 {
		t.Fatalf("unexpected order %+v", items)
	}
}

func TestBatchResultBookkeeping(t *testing.T) {
	result := NewBatchResult()
	result.Succeed(1)
	result.Skip(2)
	result.FailRow(4, 3, pkgerrors.New(pkgerrors.CodeValidation, "bad price"))

	if !result.HasFailures() {
		t.Fatalf("expected failures")
	}
	if ids := result.FailedIDs(); len(ids) != 1 || ids[0] != 3 {
		t.Fatalf("unexpected failed ids %v", ids)
	}
	if result.Failed[0].Row != 4 {
		t.Fatalf("expected row number recorded, got %d", result.Failed[0].Row)
	}
}
