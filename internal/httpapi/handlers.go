package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nixpig/buildhook/internal/jobs"
	"go.uber.org/zap"
)

const (
	// streamChunkSize is the buffer size for pumping job output to a
	// client. 4KB aligns with typical pipe buffer sizes.
	streamChunkSize = 4096
)

type handlers struct {
	registry *jobs.Registry
	logger   *zap.Logger
}

// startResponse identifies a run to the caller. The id lets a client
// re-attach to this exact run even if the name is reused later.
type startResponse struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) start(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	extraArgs := r.URL.Query()["arg"]

	job, err := h.registry.Create(name, extraArgs)
	if err != nil {
		h.mapStartError(w, name, err)
		return
	}

	writeJSON(w, http.StatusAccepted, startResponse{
		Name: job.Name(),
		ID:   job.ID(),
	})
}

func (h *handlers) mapStartError(w http.ResponseWriter, name string, err error) {
	var alreadyRunning *jobs.AlreadyRunningError

	switch {
	case errors.As(err, &alreadyRunning):
		// Report the existing run's identity so the caller can attach to it.
		writeJSON(w, http.StatusConflict, startResponse{
			Name: alreadyRunning.Job.Name(),
			ID:   alreadyRunning.Job.ID(),
		})

	case errors.Is(err, jobs.ErrInvalidName),
		errors.Is(err, jobs.ErrInvalidArguments):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})

	case errors.Is(err, jobs.ErrCapacityExceeded):
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": err.Error()})

	default:
		h.logger.Error("start job", zap.String("name", name), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to start job"})
	}
}

func (h *handlers) logsByName(w http.ResponseWriter, r *http.Request) {
	job, err := h.registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	h.streamLogs(w, r, job)
}

func (h *handlers) logsByID(w http.ResponseWriter, r *http.Request) {
	job, err := h.registry.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	h.streamLogs(w, r, job)
}

// streamLogs replays the job's captured output and follows it live until
// the job completes. The connection is held open for the duration; each
// chunk is flushed as soon as it is read so a slow client only ever delays
// itself.
func (h *handlers) streamLogs(w http.ResponseWriter, r *http.Request, job *jobs.Job) {
	sub := job.SubscribeOutput()
	defer sub.Close()

	finished := make(chan struct{})
	defer close(finished)

	// Unblock a waiting read if the client disconnects.
	go func() {
		select {
		case <-r.Context().Done():
			sub.Close()
		case <-finished:
		}
	}()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	buf := make([]byte, streamChunkSize)

	for {
		n, err := sub.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				// Transport gone; only this subscriber's stream ends.
				h.logger.Warn("stream write to client",
					zap.String("id", job.ID()),
					zap.Error(werr))
				return
			}

			if flusher != nil {
				flusher.Flush()
			}
		}

		if err != nil {
			if err != io.EOF {
				h.logger.Warn("read job output",
					zap.String("id", job.ID()),
					zap.Error(err))
			}

			return
		}
	}
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	job, err := h.registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, job.Status())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
