package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/question-bank/internal/model"
	"github.com/sells-group/question-bank/internal/store"
)

// maxTaskListLimit caps the limit parameter of /tasks.
const maxTaskListLimit = 1000

// TaskLister is the part of the store the /tasks endpoint reads.
type TaskLister interface {
	ListTasks(ctx context.Context, filter store.TaskFilter) ([]model.Task, error)
}

// NewHandler returns the read-only status surface:
//
//	GET /health   liveness
//	GET /status   per-workflow snapshot
//	GET /tasks    task listing filtered by kind, status, question_id, limit, offset
//	GET /metrics  Prometheus exposition of gatherer
func NewHandler(collector *Collector, tasks TaskLister, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		snap, err := collector.Collect(req.Context())
		if err != nil {
			zap.L().Error("status: collect failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "status unavailable")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	r.Get("/tasks", func(w http.ResponseWriter, req *http.Request) {
		filter, err := parseTaskFilter(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		list, err := tasks.ListTasks(req.Context(), filter)
		if err != nil {
			zap.L().Error("status: list tasks failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "task listing unavailable")
			return
		}
		if list == nil {
			list = []model.Task{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"tasks": list, "count": len(list)})
	})

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}

func parseTaskFilter(req *http.Request) (store.TaskFilter, error) {
	q := req.URL.Query()
	var f store.TaskFilter

	if v := q.Get("kind"); v != "" {
		kind, err := model.ParseTaskKind(v)
		if err != nil {
			return f, err
		}
		f.Kind = kind
	}
	if v := q.Get("status"); v != "" {
		status, err := model.ParseTaskStatus(v)
		if err != nil {
			return f, err
		}
		f.Status = status
	}
	f.QuestionID = q.Get("question_id")

	var err error
	if f.Limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		return f, err
	}
	if f.Limit > maxTaskListLimit {
		f.Limit = maxTaskListLimit
	}
	if f.Offset, err = intParam(q.Get("offset"), "offset"); err != nil {
		return f, err
	}
	return f, nil
}

type paramError string

func (e paramError) Error() string { return string(e) }

func intParam(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, paramError(name + " must be a non-negative integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("status: write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
