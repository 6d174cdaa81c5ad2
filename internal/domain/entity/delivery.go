package entity

import "time"

// Delivery status constants
const (
	DeliveryStatusPrepared = "PREPARED"
	DeliveryStatusReceived = "RECEIVED"
)

// Delivery is one preparation batch. It is immutable once created, apart from its reception stamp.
type Delivery struct {
	ID           string          `json:"id"`
	DemandeID    string          `json:"demande_id"`
	PreparedByID string          `json:"prepared_by_id"`
	Status       string          `json:"status"`
	Lines        []*DeliveryLine `json:"lines"`
	CreatedAt    time.Time       `json:"created_at"`
	ReceivedAt   *time.Time      `json:"received_at,omitempty"`
	ReceivedByID string          `json:"received_by_id,omitempty"`
}

// DeliveryLine records the quantity of one item shipped in a delivery
type DeliveryLine struct {
	ID         int64  `json:"id"`
	DeliveryID string `json:"delivery_id"`
	ItemID     string `json:"item_id"`
	Quantity   int64  `json:"quantity"`
}

// TotalQuantity sums the quantity of every line
func (d *Delivery) TotalQuantity() int64 {
	var total int64
	for _, l := range d.Lines {
		total += l.Quantity
	}
	return total
}
