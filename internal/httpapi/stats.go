package httpapi

import (
	"net/http"
	"strconv"

	"hardwire/internal/hardwire"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 1000
	defaultPeriodLimit = 30
)

func (s *Server) downloadStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Downloads.DownloadStats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) recentDownloads(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultRecentLimit)
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	offset := queryInt(r, "offset", 0)

	sessions, err := s.Downloads.ListDownloads(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []*hardwire.DownloadSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) statusDistribution(w http.ResponseWriter, r *http.Request) {
	dist, err := s.Downloads.DownloadStatusDistribution(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if dist == nil {
		dist = []*hardwire.StatusCount{}
	}
	writeJSON(w, http.StatusOK, dist)
}

func (s *Server) downloadsByPeriod(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "day"
	}
	buckets, err := s.Downloads.DownloadsByPeriod(r.Context(), period, queryInt(r, "limit", defaultPeriodLimit))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if buckets == nil {
		buckets = []*hardwire.PeriodCount{}
	}
	writeJSON(w, http.StatusOK, buckets)
}

// queryInt reads a non-negative integer parameter, falling back to def.
func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}
