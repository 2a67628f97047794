package wishlist

// BulkAddRequest is the body of POST /wishlist/bulk.
type BulkAddRequest struct {
	Items []AddRequest `json:"items" validate:"required,min=1,max=500,dive"`
}

// BulkAddResponse pairs the per-row outcome with the canonical items written.
type BulkAddResponse struct {
	Result BatchResult `json:"result"`
	Items  []Item      `json:"items"`
}

// BulkMoveRequest is the body of POST /wishlist/bulk/move. A nil collection
// moves the items to "uncategorised".
type BulkMoveRequest struct {
	ProductIDs     []int64 `json:"productIds" validate:"required,min=1,max=500,dive,gt=0"`
	CollectionName *string `json:"collectionName"`
}

// RemoveResponse reports whether a row was deleted.
type RemoveResponse struct {
	Removed bool `json:"removed"`
}
