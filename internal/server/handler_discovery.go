package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "Gatehouse API",
		Version:     "v1",
		Description: "Gatehouse session and account information",
		Endpoints: []endpointInfo{
			{"/api/v1/health", []string{"GET"}, "Server health, version, and active session count"},
			{"/api/v1/me", []string{"GET"}, "The session behind the request cookie"},
			{"/api/v1/users", []string{"GET"}, "All registered users (admin)"},
			{"/api/v1/sessions", []string{"GET"}, "Session table statistics (admin)"},
		},
	})
}
