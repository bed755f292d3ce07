package rest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/notifykit/notifykit/pkg/delivery"
	"github.com/notifykit/notifykit/pkg/logger"
	"github.com/notifykit/notifykit/pkg/notification"
	"github.com/notifykit/notifykit/pkg/sender"
)

// API exposes the delivery pipeline over HTTP.
type API struct {
	svc   *delivery.Service
	inApp *sender.InAppSender
	log   *slog.Logger
}

// Option configures the API.
type Option func(*API)

// WithLogger sets the API logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *API) {
		if log != nil {
			a.log = log
		}
	}
}

// NewAPI creates the HTTP surface. inApp may be nil when live streaming is
// not exposed.
func NewAPI(svc *delivery.Service, inApp *sender.InAppSender, opts ...Option) *API {
	a := &API{svc: svc, inApp: inApp, log: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Router builds the chi router for the API.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/notifications", func(r chi.Router) {
			r.Post("/", a.submitNotification)
			r.Get("/", a.listNotifications)
			if a.inApp != nil {
				r.Get("/stream", a.streamNotifications)
			}
			r.Get("/{notificationID}", a.getNotification)
		})

		r.Route("/queue", func(r chi.Router) {
			r.Get("/", a.queueStatus)
			r.Post("/pause", a.pauseQueue)
			r.Post("/resume", a.resumeQueue)
			r.Post("/clean", a.cleanQueue)
			r.Post("/jobs/{jobID}/retry", a.retryJob)
		})
	})

	return r
}

func (a *API) submitNotification(w http.ResponseWriter, r *http.Request) {
	var input delivery.SubmitInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, fmt.Errorf("%w: invalid JSON body", errBadRequest))
		return
	}

	record, err := a.svc.Submit(r.Context(), input)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusAccepted, record)
}

func (a *API) getNotification(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "notificationID"))
	if err != nil {
		respondError(w, fmt.Errorf("%w: invalid notification id", errBadRequest))
		return
	}

	record, err := a.svc.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, record)
}

func (a *API) listNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := notification.Filter{
		UserID:  q.Get("user_id"),
		Channel: notification.Channel(q.Get("channel")),
		Status:  notification.Status(q.Get("status")),
	}

	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset, _ := strconv.Atoi(q.Get("offset"))
	if offset < 0 {
		offset = 0
	}

	records, err := a.svc.List(r.Context(), filter, notification.ListOptions{
		Limit:       limit,
		Offset:      offset,
		NewestFirst: true,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	total, err := a.svc.Count(r.Context(), filter)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, JSONResponse{
		Data: records,
		Meta: map[string]any{
			"total":  total,
			"limit":  limit,
			"offset": offset,
		},
	})
}

// streamNotifications pushes the user's in-app display payloads over
// server-sent events until the client disconnects.
func (a *API) streamNotifications(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondError(w, fmt.Errorf("%w: user_id is required", errBadRequest))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, fmt.Errorf("%w: streaming unsupported", errBadRequest))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := a.inApp.Subscribe(r.Context(), userID)
	defer sub.Close()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-sub.Receive(r.Context()):
			if !ok {
				return
			}
			body, err := json.Marshal(msg.Data)
			if err != nil {
				a.log.LogAttrs(r.Context(), slog.LevelError, "failed to marshal display payload",
					logger.UserID(userID), logger.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: notification\ndata: %s\n\n", body)
			flusher.Flush()
		}
	}
}

func (a *API) queueStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.svc.QueueStatus(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, status)
}

func (a *API) pauseQueue(w http.ResponseWriter, r *http.Request) {
	a.svc.PauseQueue()
	respondData(w, http.StatusOK, map[string]bool{"paused": true})
}

func (a *API) resumeQueue(w http.ResponseWriter, r *http.Request) {
	a.svc.ResumeQueue()
	respondData(w, http.StatusOK, map[string]bool{"paused": false})
}

func (a *API) cleanQueue(w http.ResponseWriter, r *http.Request) {
	graceMillis, err := strconv.ParseInt(r.URL.Query().Get("grace_ms"), 10, 64)
	if err != nil || graceMillis < 0 {
		respondError(w, fmt.Errorf("%w: grace_ms must be a non-negative integer", errBadRequest))
		return
	}

	removed, err := a.svc.CleanQueue(r.Context(), time.Duration(graceMillis)*time.Millisecond)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]int{"removed": removed})
}

func (a *API) retryJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		respondError(w, fmt.Errorf("%w: invalid job id", errBadRequest))
		return
	}

	requeued, err := a.svc.RetryJob(r.Context(), jobID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]bool{"requeued": requeued})
}
