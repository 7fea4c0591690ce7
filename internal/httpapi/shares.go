package httpapi

import (
	"encoding/json"
	"io"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"hardwire/internal/hardwire"
	"hardwire/internal/progress"
	"hardwire/internal/share"
	"hardwire/internal/streaming"
)

type sharedFileResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	SHA256   string `json:"sha256,omitempty"`
	Download string `json:"download"`
}

func (s *Server) listShare(w http.ResponseWriter, r *http.Request) {
	shareID := chi.URLParam(r, "shareID")
	files, err := s.Shares.Files(r.Context(), shareID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	base := share.URL(s.PublicURL, shareID)
	resp := make([]sharedFileResponse, 0, len(files))
	for _, f := range files {
		resp = append(resp, sharedFileResponse{
			ID:       f.ID,
			Name:     filepath.Base(f.Path),
			Size:     f.FileSize,
			SHA256:   f.SHA256,
			Download: base + "/" + strconv.FormatInt(f.ID, 10),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// downloadShared serves one shared file, honouring a single Range, and
// reports delivered bytes on the progress bus.
func (s *Server) downloadShared(w http.ResponseWriter, r *http.Request) {
	shareID := chi.URLParam(r, "shareID")
	fileID, err := strconv.ParseInt(chi.URLParam(r, "fileID"), 10, 64)
	if err != nil {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}

	sf, err := s.Shares.File(r.Context(), shareID, fileID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	f, err := os.Open(sf.Path)
	if err != nil {
		if os.IsNotExist(err) {
			writeMessage(w, http.StatusNotFound, "file no longer available")
			return
		}
		s.writeError(w, r, err)
		return
	}

	size, err := streaming.FileSize(s.cache(), sf.Path, f)
	if err != nil {
		f.Close()
		s.writeError(w, r, err)
		return
	}
	win := streaming.Resolve(r.Header.Get("Range"), size)

	h := w.Header()
	h.Set("Content-Type", contentType(sf.Path))
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filepath.Base(sf.Path)}))
	status := streaming.WriteHeaders(h, win)

	if r.Method == http.MethodHead {
		f.Close()
		w.WriteHeader(status)
		return
	}

	body, err := streaming.OpenWindow(f, win)
	if err != nil {
		f.Close()
		s.writeError(w, r, err)
		return
	}
	ip := clientIP(r)
	stream := progress.NewStream(body, s.Events, progress.StreamInfo{
		FilePath:      sf.Path,
		TransactionID: progress.TransactionID(shareID, fileID, ip),
		IPAddress:     ip,
		FileSize:      size,
		RangeStart:    win.Start,
	})
	defer stream.Close()

	w.WriteHeader(status)
	if _, err := io.Copy(w, stream); err != nil {
		s.Logger.Debug("download interrupted", "path", sf.Path, "ip", ip, "sent", stream.BytesRead(), "error", err)
	}
}

func (s *Server) cache() streaming.SizeCache {
	if s.Index == nil {
		return nil
	}
	return s.Index
}

type createShareResponse struct {
	Link       string                 `json:"link"`
	ShareID    string                 `json:"share_id"`
	Expiration int64                  `json:"expiration"`
	Files      []*hardwire.SharedFile `json:"files"`
}

func (s *Server) createShare(w http.ResponseWriter, r *http.Request) {
	var paths []string
	if err := json.NewDecoder(r.Body).Decode(&paths); err != nil {
		writeMessage(w, http.StatusBadRequest, "body must be a JSON array of paths")
		return
	}

	link, files, err := s.Shares.Publish(r.Context(), paths, s.ShareTTL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createShareResponse{
		Link:       share.URL(s.PublicURL, link.ID),
		ShareID:    link.ID,
		Expiration: link.Expiration,
		Files:      files,
	})
}

func contentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// clientIP strips the port from RemoteAddr. RealIP has already replaced it
// with the forwarded address when one was sent.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
