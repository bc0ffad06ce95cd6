package domain

// ScoreItem is the view of a candidate sent to the scoring service.
type ScoreItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	MOQ      string `json:"moq"`
	Supplier string `json:"supplier"`
	Category string `json:"category,omitempty"`
	Orders   string `json:"orders,omitempty"`
	HasImage bool   `json:"hasImage,omitempty"`
}

// ScoreRequest is one batch. Strict asks the service to return nothing but
// the JSON document; it is set on the single retry after a malformed reply.
type ScoreRequest struct {
	Items  []ScoreItem
	Strict bool
}

// ScoreItemFrom projects a candidate onto the scoring contract.
func ScoreItemFrom(rec ProductRecord) ScoreItem {
	return ScoreItem{
		ID:       rec.ID,
		Name:     rec.Name,
		Price:    rec.PriceRange,
		MOQ:      rec.MOQ,
		Supplier: rec.Supplier,
		Category: rec.Category,
		Orders:   rec.OrdersOrReviews,
		HasImage: rec.ImageURL != "" && rec.ImageURL != Unknown,
	}
}
