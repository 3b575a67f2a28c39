package api

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/relayq/relayq/internal/engine"
	"github.com/relayq/relayq/internal/model"
)

func (s *Server) handleListQueues(w http.ResponseWriter, r *http.Request) {
	names, err := s.engine.ListQueues(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handlePutQueue(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("q")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, engine.BadRequest(err))
		return
	}

	settings := model.DefaultSettings()
	if len(body) > 0 {
		settings, err = model.ParseSettingsJSON(body)
		if err != nil {
			writeError(w, engine.BadRequest(err))
			return
		}
	}

	created, err := s.engine.CreateOrUpdateQueue(r.Context(), name, settings)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Location", "/queue/"+name)
	if created {
		writeNoBody(w, http.StatusCreated)
		return
	}
	writeNoBody(w, http.StatusNoContent)
}

func (s *Server) handleDeleteQueue(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("q")

	existed, err := s.engine.DeleteQueue(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	if !existed {
		writeError(w, engine.NoSuchQueue(nil))
		return
	}
	writeNoBody(w, http.StatusNoContent)
}

func (s *Server) handleGetQueueSettings(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("q")

	settings, err := s.engine.GetQueueSettings(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleQueueSize(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("q")

	n, err := s.engine.QueueSize(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleQueueJobIDs(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("q")

	ids, err := s.engine.QueueJobIDs(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	queue := r.PathValue("q")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, engine.BadRequest(err))
		return
	}
	req, err := model.ParseCreateRequestJSON(body)
	if err != nil {
		writeError(w, engine.BadRequest(err))
		return
	}

	// Write the contingency record before calling the engine, per 4.E: if
	// the engine call's response never makes it back to the client, the
	// file on disk is the only record a job may have actually been created.
	walPath, walErr := s.wal.Write(queue, body)
	if walErr != nil {
		s.log.Warn("wal write failed, proceeding without contingency record", "queue", queue, "error", walErr)
	}

	id, err := s.engine.CreateJob(r.Context(), queue, req)
	if err != nil {
		writeError(w, err)
		return
	}
	s.metrics.RecordJobCreated()

	if walErr == nil {
		if err := s.wal.Delete(walPath); err != nil {
			s.log.Warn("wal delete failed", "path", walPath, "error", err)
		}
	}

	w.Header().Set("Location", "/job/"+strconv.FormatInt(id, 10))
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleReserveJob(w http.ResponseWriter, r *http.Request) {
	queue := r.PathValue("q")

	job, err := s.engine.NextQueuedJob(r.Context(), queue)
	if err != nil {
		writeError(w, err)
		return
	}
	if job == nil {
		// Rate-limits tight polling loops (4.F).
		if s.nextJobDelay > 0 {
			select {
			case <-time.After(s.nextJobDelay):
			case <-r.Context().Done():
				return
			}
		}
		writeNoBody(w, http.StatusNoContent)
		return
	}
	s.metrics.RecordJobReserved()
	writeJSON(w, http.StatusOK, job)
}

// handleReattempt resubmits a pending contingency record identified by its
// write timestamp, enriching its input with attempted_on, then deletes the
// file once the engine confirms creation.
func (s *Server) handleReattempt(w http.ResponseWriter, r *http.Request) {
	queue := r.PathValue("q")
	ts := r.PathValue("ts")

	path, err := s.walPathForTimestamp(r.Context(), queue, ts)
	if err != nil {
		writeError(w, engine.Internal(err))
		return
	}

	body, err := s.wal.Read(path)
	if err != nil {
		writeError(w, engine.Internal(err))
		return
	}

	enriched, err := enrichAttemptedOn(body)
	if err != nil {
		writeError(w, engine.Internal(err))
		return
	}

	req, err := model.ParseCreateRequestJSON(enriched)
	if err != nil {
		writeError(w, engine.Internal(err))
		return
	}

	id, err := s.engine.CreateJob(r.Context(), queue, req)
	if err != nil {
		writeError(w, engine.Internal(err))
		return
	}
	s.metrics.RecordJobCreated()

	if err := s.wal.Delete(path); err != nil {
		s.log.Warn("wal delete failed after reattempt", "path", path, "error", err)
	}

	w.Header().Set("Location", "/job/"+strconv.FormatInt(id, 10))
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) walPathForTimestamp(_ context.Context, queue, ts string) (string, error) {
	paths, err := s.wal.List(queue)
	if err != nil {
		return "", err
	}
	for _, p := range paths {
		if matchesTimestamp(p, ts) {
			return p, nil
		}
	}
	return "", errNoSuchWALRecord
}
