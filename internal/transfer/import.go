package transfer

import (
	"context"

	"github.com/nlenjibi/storefront-wishlist/internal/wishlist"
	pkgerrors "github.com/nlenjibi/storefront-wishlist/pkg/errors"
)

// Adder receives imported items; the sync engine and the remote client both fit.
type Adder interface {
	Add(ctx context.Context, req wishlist.AddRequest) (wishlist.Item, error)
}

// Import adds every row independently. A failing row is reported with its
// line number and never stops the rest of the batch.
func Import(ctx context.Context, adder Adder, rows []Row) (wishlist.BatchResult, error) {
	result := wishlist.NewBatchResult()
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "import interrupted")
		}
		if row.Err != nil {
			result.FailRow(row.Line, row.Record.ProductID, row.Err)
			continue
		}
		req, err := row.Record.Request()
		if err != nil {
			result.FailRow(row.Line, row.Record.ProductID, err)
			continue
		}
		if _, err := adder.Add(ctx, req); err != nil {
			result.FailRow(row.Line, req.ProductID, err)
			continue
		}
		result.Succeed(req.ProductID)
	}
	return result, nil
}
