package httpapi

import (
	"net/http"

	"hardwire/internal/hardwire"
)

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	tree := s.Index.Tree()
	if tree == nil {
		tree = []hardwire.IndexEntry{}
	}
	writeJSON(w, http.StatusOK, tree)
}

// rescan blocks until the requested scan has been committed.
func (s *Server) rescan(w http.ResponseWriter, r *http.Request) {
	if err := s.Index.RescanAndWait(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
