package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/stampwise/passd/internal/version"
)

type VersionResponse struct {
	Version   string `json:"version" example:"1.0.0"`
	GitCommit string `json:"git_commit" example:"a1b2c3d"`
	BuildDate string `json:"build_date" example:"2026-01-28T10:00:00Z"`
	Service   string `json:"service" example:"passd-server"`
}

// HandleVersion godoc
//
//	@Summary		Get version information
//	@Description	Returns the version and build information for the service
//	@Tags			Common
//	@Produce		json
//	@Success		200	{object}	VersionResponse	"Version information"
//	@Router			/version [get]
func HandleVersion(service string) http.HandlerFunc {
	// Pre-create the response to avoid allocating on every request
	info := version.Get()
	response := VersionResponse{
		Version:   info.Version,
		GitCommit: info.GitCommit,
		BuildDate: info.BuildDate,
		Service:   service,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(response); err != nil {
			http.Error(w, "Failed to encode version", http.StatusInternalServerError)
			return
		}
	}
}
