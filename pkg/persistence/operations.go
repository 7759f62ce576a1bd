package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"appraisal/pkg/mapper"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// DatabaseOperations provides methods for database operations.
type DatabaseOperations struct {
	db *sql.DB
}

// NewDatabaseOperations creates a new DatabaseOperations instance.
func NewDatabaseOperations(db *sql.DB) *DatabaseOperations {
	return &DatabaseOperations{db: db}
}

// SaveAnalysis persists a completed analysis response. Nested payload parts
// are stored as JSON text in their own columns.
func (ops *DatabaseOperations) SaveAnalysis(resp *mapper.AnalyzeResponse) error {
	priceRange, err := json.Marshal(resp.EstimatedPriceRange)
	if err != nil {
		return fmt.Errorf("failed to marshal price range: %w", err)
	}
	platforms, err := json.Marshal(resp.Platforms)
	if err != nil {
		return fmt.Errorf("failed to marshal platforms: %w", err)
	}
	stores, err := json.Marshal(resp.LocalStores)
	if err != nil {
		return fmt.Errorf("failed to marshal local stores: %w", err)
	}
	tips, err := json.Marshal(resp.ConditionTips)
	if err != nil {
		return fmt.Errorf("failed to marshal condition tips: %w", err)
	}

	var negotiation any
	if resp.NegotiationStrategy != nil {
		data, err := json.Marshal(resp.NegotiationStrategy)
		if err != nil {
			return fmt.Errorf("failed to marshal negotiation strategy: %w", err)
		}
		negotiation = string(data)
	}

	query := `
		INSERT INTO analyses (
			id, image_url, item_name, item_description, condition,
			estimated_price_range, market_context, best_platform,
			platforms, local_stores, negotiation_strategy, condition_tips,
			confidence, processing_time_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = ops.db.Exec(query,
		resp.AnalysisID, resp.ImageURL, resp.ItemName, resp.ItemDescription,
		resp.Condition, string(priceRange), resp.MarketContext,
		resp.BestPlatform, string(platforms), string(stores), negotiation,
		string(tips), resp.Confidence, resp.ProcessingTimeMs,
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis %s: %w", resp.AnalysisID, err)
	}
	return nil
}

// GetAnalysis loads one persisted analysis by ID.
func (ops *DatabaseOperations) GetAnalysis(id string) (*mapper.AnalyzeResponse, error) {
	query := `
		SELECT id, image_url, item_name, item_description, condition,
			estimated_price_range, market_context, best_platform,
			platforms, local_stores, negotiation_strategy, condition_tips,
			confidence, processing_time_ms
		FROM analyses WHERE id = ?`

	var (
		resp        mapper.AnalyzeResponse
		priceRange  string
		platforms   string
		stores      string
		tips        string
		negotiation sql.NullString
	)
	err := ops.db.QueryRow(query, id).Scan(
		&resp.AnalysisID, &resp.ImageURL, &resp.ItemName,
		&resp.ItemDescription, &resp.Condition, &priceRange,
		&resp.MarketContext, &resp.BestPlatform, &platforms, &stores,
		&negotiation, &tips, &resp.Confidence, &resp.ProcessingTimeMs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(priceRange), &resp.EstimatedPriceRange); err != nil {
		return nil, fmt.Errorf("corrupt price range for analysis %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(platforms), &resp.Platforms); err != nil {
		return nil, fmt.Errorf("corrupt platforms for analysis %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(stores), &resp.LocalStores); err != nil {
		return nil, fmt.Errorf("corrupt local stores for analysis %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(tips), &resp.ConditionTips); err != nil {
		return nil, fmt.Errorf("corrupt condition tips for analysis %s: %w", id, err)
	}
	if negotiation.Valid && negotiation.String != "" {
		resp.NegotiationStrategy = &mapper.NegotiationStrategy{}
		if err := json.Unmarshal([]byte(negotiation.String), resp.NegotiationStrategy); err != nil {
			return nil, fmt.Errorf("corrupt negotiation strategy for analysis %s: %w", id, err)
		}
	}
	return &resp, nil
}

// CreateNegotiationJob inserts a pending job row and seeds one offer row per
// target store. Returns the generated job ID.
func (ops *DatabaseOperations) CreateNegotiationJob(analysisID string, stores []mapper.LocalStore) (string, error) {
	jobID := uuid.NewString()

	tx, err := ops.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(
		"INSERT INTO negotiation_jobs (id, analysis_id, status) VALUES (?, ?, ?)",
		jobID, analysisID, JobStatusPending,
	); err != nil {
		return "", fmt.Errorf("failed to insert negotiation job: %w", err)
	}

	for _, s := range stores {
		if _, err := tx.Exec(`
			INSERT INTO store_offers (id, job_id, store_name, store_address, store_phone, store_specialty, accepted)
			VALUES (?, ?, ?, ?, ?, ?, 0)`,
			uuid.NewString(), jobID, s.Name, s.Address, s.Phone, s.Specialty,
		); err != nil {
			return "", fmt.Errorf("failed to seed offer for %s: %w", s.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit negotiation job: %w", err)
	}
	return jobID, nil
}

// GetNegotiationJob loads one job row.
func (ops *DatabaseOperations) GetNegotiationJob(jobID string) (*NegotiationJob, error) {
	var (
		job       NegotiationJob
		createdAt string
	)
	err := ops.db.QueryRow(
		"SELECT id, analysis_id, status, created_at FROM negotiation_jobs WHERE id = ?",
		jobID,
	).Scan(&job.ID, &job.AnalysisID, &job.Status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("negotiation job %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query negotiation job %s: %w", jobID, err)
	}
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		job.CreatedAt = ts
	}
	return &job, nil
}

// UpdateJobStatus advances a job through pending -> in_progress -> done.
func (ops *DatabaseOperations) UpdateJobStatus(jobID, status string) error {
	res, err := ops.db.Exec("UPDATE negotiation_jobs SET status = ? WHERE id = ?", status, jobID)
	if err != nil {
		return fmt.Errorf("failed to update job %s status: %w", jobID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("negotiation job %s: %w", jobID, ErrNotFound)
	}
	return nil
}

// RecordOffer writes one store's call outcome, matched by job and store name.
func (ops *DatabaseOperations) RecordOffer(jobID, storeName string, accepted bool, agreedPrice *float64, callSummary *string) error {
	_, err := ops.db.Exec(`
		UPDATE store_offers SET accepted = ?, agreed_price = ?, call_summary = ?
		WHERE job_id = ? AND store_name = ?`,
		accepted, agreedPrice, callSummary, jobID, storeName,
	)
	if err != nil {
		return fmt.Errorf("failed to record offer for %s: %w", storeName, err)
	}
	return nil
}

// GetOffersByJob returns all offer rows for a job, in insertion order.
func (ops *DatabaseOperations) GetOffersByJob(jobID string) ([]StoreOffer, error) {
	rows, err := ops.db.Query(`
		SELECT id, job_id, store_name, store_address, store_phone, store_specialty,
			accepted, agreed_price, call_summary
		FROM store_offers WHERE job_id = ? ORDER BY rowid`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query offers for job %s: %w", jobID, err)
	}
	defer rows.Close()

	var offers []StoreOffer
	for rows.Next() {
		var (
			o       StoreOffer
			price   sql.NullFloat64
			summary sql.NullString
		)
		if err := rows.Scan(&o.ID, &o.JobID, &o.StoreName, &o.StoreAddress,
			&o.StorePhone, &o.StoreSpecialty, &o.Accepted, &price, &summary); err != nil {
			return nil, fmt.Errorf("failed to scan offer row: %w", err)
		}
		if price.Valid {
			o.AgreedPrice = &price.Float64
		}
		if summary.Valid {
			o.CallSummary = &summary.String
		}
		offers = append(offers, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate offer rows: %w", err)
	}
	return offers, nil
}
