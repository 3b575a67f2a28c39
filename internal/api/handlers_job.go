package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/relayq/relayq/internal/engine"
	"github.com/relayq/relayq/internal/model"
)

func pathInt64(r *http.Request, key string) (int64, error) {
	return strconv.ParseInt(r.PathValue(key), 10, 64)
}

func (s *Server) handlePatchJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, engine.BadRequest(err))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, engine.BadRequest(err))
		return
	}
	patch, err := model.ParsePatchRequestJSON(body)
	if err != nil {
		writeError(w, engine.BadRequest(err))
		return
	}

	if patch.Heartbeat {
		if err := s.engine.Heartbeat(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
	}

	if patch.Output != nil {
		if err := s.engine.SetOutput(r.Context(), id, patch.Output); err != nil {
			writeError(w, err)
			return
		}
	}

	if patch.Status != nil {
		before, err := s.engine.GetJob(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := s.engine.UpdateJobStatus(r.Context(), id, *patch.Status); err != nil {
			writeError(w, err)
			return
		}
		s.metrics.RecordTransition(before.Status, *patch.Status)
	}

	writeNoBody(w, http.StatusOK)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, engine.BadRequest(err))
		return
	}

	job, err := s.engine.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, engine.BadRequest(err))
		return
	}

	if err := s.engine.DeleteJob(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeNoBody(w, http.StatusNoContent)
}

func (s *Server) handleGetTagged(w http.ResponseWriter, r *http.Request) {
	tag := r.PathValue("t")

	ids, err := s.engine.GetTagged(r.Context(), tag)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}
