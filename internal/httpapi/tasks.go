package httpapi

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"hardwire/internal/hardwire"
)

type submitTaskResponse struct {
	TaskID string `json:"task_id"`
}

func (s *Server) submitTask(w http.ResponseWriter, r *http.Request) {
	var in hardwire.ArchiveJobInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	id, err := s.Tasks.SubmitArchiveJob(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitTaskResponse{TaskID: id})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.Tasks.GetTask(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// downloadTaskArchive streams the archive of a completed task.
func (s *Server) downloadTaskArchive(w http.ResponseWriter, r *http.Request) {
	task, err := s.Tasks.GetTask(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if task.Status != hardwire.TaskCompleted || task.Output == nil {
		writeMessage(w, http.StatusConflict, "task is "+string(task.Status))
		return
	}

	f, err := os.Open(task.Output.ArchivePath)
	if err != nil {
		if os.IsNotExist(err) {
			writeMessage(w, http.StatusNotFound, "archive no longer available")
			return
		}
		s.writeError(w, r, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	name := filepath.Base(task.Output.ArchivePath)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeContent(w, r, name, info.ModTime(), f)
}
