package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name      string         `json:"name"`
	Version   string         `json:"version"`
	Endpoints []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	endpoints := []endpointInfo{
		{"/api/v1/health", []string{"GET"}, "Liveness and time of the last loop iteration"},
		{"/api/v1/queue", []string{"GET"}, "Pending pairs, watermark and cluster load"},
		{"/api/v1/queue/{pair}", []string{"GET"}, "Whether a pair such as 41-38 is queued, in either colour order"},
	}
	if s.metrics != nil {
		endpoints = append(endpoints, endpointInfo{"/metrics", []string{"GET"}, "Prometheus metrics"})
	}
	respondOK(w, reqID, discoveryResponse{
		Name:      "evalzoo",
		Version:   "v1",
		Endpoints: endpoints,
	})
}
