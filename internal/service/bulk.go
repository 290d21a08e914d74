package service

import "fintrack/internal/apperr"

// BulkItem is the outcome of one id in a bulk request.
type BulkItem struct {
	ID            int64  `json:"id"`
	Success       bool   `json:"success"`
	Code          string `json:"code,omitempty"`
	Error         string `json:"error,omitempty"`
	TransactionID *int64 `json:"transaction_id,omitempty"`
}

// BulkResult reports every item; one failure never hides or undoes the others.
type BulkResult struct {
	AffectedCount int        `json:"affected_count"`
	Items         []BulkItem `json:"items"`
}

func (r *BulkResult) add(id int64, transactionID *int64, err error) {
	if err != nil {
		r.Items = append(r.Items, BulkItem{ID: id, Code: apperr.Code(err), Error: err.Error()})
		return
	}
	r.AffectedCount++
	r.Items = append(r.Items, BulkItem{ID: id, Success: true, TransactionID: transactionID})
}

// Failed returns the items that did not go through.
func (r *BulkResult) Failed() []BulkItem {
	var out []BulkItem
	for _, it := range r.Items {
		if !it.Success {
			out = append(out, it)
		}
	}
	return out
}
