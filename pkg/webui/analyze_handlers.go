package webui

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"appraisal/pkg/agent"
	"appraisal/pkg/config"
	"appraisal/pkg/mapper"
	"appraisal/pkg/persistence"
	"appraisal/pkg/pipeline"
	"appraisal/pkg/swarm"
	"appraisal/pkg/utils"
)

var mimeExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// handleAnalyze implements POST /api/analyze: multipart photo upload plus
// an optional ll coordinates field, runs the full pipeline synchronously
// and returns the mapped analysis.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form: %v", err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing file field: %v", err)
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "reading upload: %v", err)
		return
	}

	mime, err := utils.DetectImageMIME(image, header.Filename)
	if err != nil {
		s.writeError(w, http.StatusUnsupportedMediaType, "unsupported image: %v", err)
		return
	}

	coordinates := r.FormValue("ll")
	if coordinates == "" {
		coordinates = config.DefaultCoordinates
	}

	analysisID := uuid.NewString()
	imageURL := s.storeUpload(analysisID, mime, image)

	rec, err := s.run(r, pipeline.Input{
		AnalysisID:  analysisID,
		Image:       image,
		MIME:        mime,
		Coordinates: coordinates,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "analysis failed: %v", err)
		return
	}

	resp := mapper.Map(rec, imageURL)
	if err := s.ops.SaveAnalysis(&resp); err != nil {
		s.logger.Error("Persisting analysis %s: %v", analysisID, err)
	}

	s.logger.Info("Analysis %s finished in %s", analysisID, time.Duration(resp.ProcessingTimeMs)*time.Millisecond)
	s.writeJSON(w, resp)
}

// runPipeline builds per-request LLM clients so concurrent analyses carry
// their own metrics attribution, then executes the appraisal graph.
func (s *Server) runPipeline(r *http.Request, in pipeline.Input) (pipeline.Record, error) {
	tracker := pipeline.NewRunTracker()

	vision, err := s.factory.CreateClientWithRun(agent.RoleVision, tracker)
	if err != nil {
		return pipeline.Record{}, err
	}
	swarmClient, err := s.factory.CreateClientWithRun(agent.RoleSwarm, tracker)
	if err != nil {
		return pipeline.Record{}, err
	}
	synthesis, err := s.factory.CreateClientWithRun(agent.RoleSynthesis, tracker)
	if err != nil {
		return pipeline.Record{}, err
	}

	recorder := s.factory.Recorder()
	coordinator := swarm.NewCoordinator(swarmClient, recorder)

	runner, err := pipeline.NewRunner(vision, synthesis, coordinator, s.finder, tracker, recorder)
	if err != nil {
		return pipeline.Record{}, err
	}
	return runner.Run(r.Context(), in)
}

// storeUpload writes the photo under the uploads dir and returns its URL
// path. A write failure degrades to an empty URL; the analysis proceeds.
func (s *Server) storeUpload(analysisID, mime string, image []byte) string {
	ext, ok := mimeExtensions[mime]
	if !ok {
		ext = ".bin"
	}
	name := analysisID + ext
	if err := os.WriteFile(filepath.Join(s.uploadDir, name), image, 0o644); err != nil {
		s.logger.Warn("Storing upload for %s: %v", analysisID, err)
		return ""
	}
	return "/uploads/" + name
}

// handleGetAnalysis implements GET /api/analyses?id=.
func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "missing id parameter")
		return
	}

	resp, err := s.ops.GetAnalysis(id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "Analysis not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "loading analysis: %v", err)
		return
	}
	s.writeJSON(w, resp)
}
