package wishlist

// BatchFailure explains why one product in a batch was not applied.
type BatchFailure struct {
	ProductID int64  `json:"productId"`
	Row       int    `json:"row,omitempty"`
	Reason    string `json:"reason"`
}

// BatchResult is the per-item breakdown returned by merge, bulk move and bulk
// import. A batch with failures is still a successful call.
type BatchResult struct {
	Succeeded []int64        `json:"succeeded"`
	Skipped   []int64        `json:"skipped"`
	Failed    []BatchFailure `json:"failed"`
}

func NewBatchResult() BatchResult {
	return BatchResult{
		Succeeded: []int64{},
		Skipped:   []int64{},
		Failed:    []BatchFailure{},
	}
}

func (r *BatchResult) Succeed(productID int64) {
	r.Succeeded = append(r.Succeeded, productID)
}

func (r *BatchResult) Skip(productID int64) {
	r.Skipped = append(r.Skipped, productID)
}

func (r *BatchResult) Fail(productID int64, err error) {
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	r.Failed = append(r.Failed, BatchFailure{ProductID: productID, Reason: reason})
}

// FailRow records a failure for an input row that may not carry a valid product id.
func (r *BatchResult) FailRow(row int, productID int64, err error) {
	r.Fail(productID, err)
	r.Failed[len(r.Failed)-1].Row = row
}

func (r BatchResult) HasFailures() bool {
	return len(r.Failed) > 0
}

func (r BatchResult) FailedIDs() []int64 {
	ids := make([]int64, 0, len(r.Failed))
	for _, f := range r.Failed {
		ids = append(ids, f.ProductID)
	}
	return ids
}
