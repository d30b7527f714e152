package api

import (
	"net/http"

	"github.com/yazwaza/us-treasuries/internal/config"
)

// ConfigResponse is the JSON envelope returned by GET /api/v1/config.
type ConfigResponse struct {
	Config  *config.Config `json:"config"`
	Fitting FittingView    `json:"fitting"`
}

// FittingView is the effective fitting setup after defaults are applied.
type FittingView struct {
	Model      string      `json:"model"`
	Strategy   string      `json:"strategy"`
	Weighted   bool        `json:"weighted"`
	ColdStart  []float64   `json:"cold_start"`
	Bounds     [][]float64 `json:"bounds"`
	ChunkSize  int         `json:"chunk_size"`
	Thresholds []float64   `json:"thresholds"`
}

// handleGetConfig returns the running configuration and the resolved
// fitting settings. The config is read-only over HTTP.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	fc, sc, err := s.cfg.FittingOptions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "invalid fitting config: "+err.Error())
		return
	}
	bounds := make([][]float64, len(fc.Bounds))
	for i, b := range fc.Bounds {
		bounds[i] = []float64{b.Lower, b.Upper}
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: ConfigResponse{
			Config: s.cfg,
			Fitting: FittingView{
				Model:      string(fc.Model),
				Strategy:   sc.Strategy.String(),
				Weighted:   fc.Weighted,
				ColdStart:  fc.ColdStart,
				Bounds:     bounds,
				ChunkSize:  fc.ChunkSize,
				Thresholds: []float64{fc.GoodThreshold, fc.AcceptableThreshold},
			},
		},
	})
}
