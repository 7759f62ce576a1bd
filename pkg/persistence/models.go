package persistence

import (
	"time"
)

// Negotiation job statuses.
const (
	JobStatusPending    = "pending"
	JobStatusInProgress = "in_progress"
	JobStatusDone       = "done"
)

// NegotiationJob tracks one calling round over an analysis's target shops.
type NegotiationJob struct {
	ID         string    `json:"id"`
	AnalysisID string    `json:"analysis_id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// StoreOffer is the outcome of one shop call within a job. Accepted offers
// carry the agreed price and a short call summary.
type StoreOffer struct {
	ID             string   `json:"id"`
	JobID          string   `json:"job_id"`
	StoreName      string   `json:"store_name"`
	StoreAddress   string   `json:"store_address"`
	StorePhone     string   `json:"store_phone"`
	StoreSpecialty string   `json:"store_specialty"`
	Accepted       bool     `json:"accepted"`
	AgreedPrice    *float64 `json:"agreed_price"`
	CallSummary    *string  `json:"call_summary"`
}
