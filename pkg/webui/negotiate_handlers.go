package webui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"appraisal/pkg/persistence"
	"appraisal/pkg/voice"
)

// NegotiateRequest starts a calling round over an analysis's target shops.
type NegotiateRequest struct {
	AnalysisID string `json:"analysis_id"`
}

// NegotiateResponse acknowledges a created job.
type NegotiateResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// OffersResponse is the polling shape for GET /api/offers.
type OffersResponse struct {
	JobID    string                   `json:"job_id"`
	Status   string                   `json:"status"`
	ItemName string                   `json:"item_name"`
	ImageURL string                   `json:"image_url"`
	Offers   []persistence.StoreOffer `json:"offers"`
}

// handleNegotiate implements POST /api/negotiate: creates the job with one
// pending offer row per stored shop and launches the calling worker in the
// background.
func (s *Server) handleNegotiate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req NegotiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AnalysisID == "" {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	analysis, err := s.ops.GetAnalysis(req.AnalysisID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "Analysis not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "loading analysis: %v", err)
		return
	}

	jobID, err := s.ops.CreateNegotiationJob(req.AnalysisID, analysis.LocalStores)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "creating job: %v", err)
		return
	}

	runner := voice.NewRunner(s.ops, s.dialer)
	go func() {
		// Detached from the request context: the client polls /api/offers
		// while calls proceed.
		if err := runner.Run(context.Background(), jobID, analysis.LocalStores, analysis.NegotiationStrategy); err != nil {
			s.logger.Error("Negotiation job %s: %v", jobID, err)
		}
	}()

	s.writeJSON(w, NegotiateResponse{JobID: jobID, Status: persistence.JobStatusPending})
}

// handleOffers implements GET /api/offers?job_id=.
func (s *Server) handleOffers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		s.writeError(w, http.StatusBadRequest, "missing job_id parameter")
		return
	}

	job, err := s.ops.GetNegotiationJob(jobID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "Job not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "loading job: %v", err)
		return
	}

	resp := OffersResponse{JobID: job.ID, Status: job.Status}
	if analysis, err := s.ops.GetAnalysis(job.AnalysisID); err == nil {
		resp.ItemName = analysis.ItemName
		resp.ImageURL = analysis.ImageURL
	}

	offers, err := s.ops.GetOffersByJob(jobID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "loading offers: %v", err)
		return
	}
	resp.Offers = offers

	s.writeJSON(w, resp)
}
