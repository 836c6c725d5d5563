package main

import (
	"encoding/json"
	"hash/fnv"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type seriesRequest struct {
	Metric   string            `json:"metric"`
	TenantID string            `json:"tenant_id"`
	Tags     map[string]string `json:"tags,omitempty"`
	Start    string            `json:"start"`
	End      string            `json:"end"`
}

type seriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// recordStore keeps everything the engine PUTs so it can be inspected with GET.
type recordStore struct {
	mu      sync.RWMutex
	records map[string]map[string]json.RawMessage
}

func newRecordStore() *recordStore {
	return &recordStore{records: map[string]map[string]json.RawMessage{
		"anomalies": {},
		"insights":  {},
	}}
}

func (s *recordStore) put(kind, id string, body json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[kind][id] = body
}

func (s *recordStore) list(kind string) []json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records[kind]))
	for id := range s.records[kind] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.records[kind][id])
	}
	return out
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil)).With(slog.String("component", "core-mock"))
	store := newRecordStore()

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(logRequests(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Post("/api/v1/series", func(w http.ResponseWriter, req *http.Request) {
		var body seriesRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		start, err := time.Parse(time.RFC3339, body.Start)
		if err != nil {
			http.Error(w, "bad start", http.StatusBadRequest)
			return
		}
		end, err := time.Parse(time.RFC3339, body.End)
		if err != nil {
			http.Error(w, "bad end", http.StatusBadRequest)
			return
		}
		if strings.HasPrefix(body.Metric, "missing") {
			http.NotFound(w, req)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"series": synthesize(body.Metric, body.TenantID, start, end)})
	})

	for _, kind := range []string{"anomalies", "insights"} {
		kind := kind
		r.Put("/api/v1/"+kind+"/*", func(w http.ResponseWriter, req *http.Request) {
			id := chi.URLParam(req, "*")
			data, err := io.ReadAll(io.LimitReader(req.Body, 1<<20))
			if err != nil || !json.Valid(data) {
				http.Error(w, "invalid json body", http.StatusBadRequest)
				return
			}
			store.put(kind, id, data)
			w.WriteHeader(http.StatusNoContent)
		})
		r.Get("/api/v1/"+kind, func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{kind: store.list(kind)})
		})
	}

	srv := &http.Server{
		Addr:              ":8080",
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("listening", slog.String("address", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
}

// synthesize returns one sample per minute: a daily sine wave around a per-series
// base level, a slow upward drift and an occasional spike.
func synthesize(metric, tenant string, start, end time.Time) []seriesPoint {
	h := fnv.New32a()
	_, _ = h.Write([]byte(metric + "@" + tenant))
	seed := h.Sum32()
	base := 20 + float64(seed%50)
	amplitude := base * 0.2

	start = start.Truncate(time.Minute)
	points := make([]seriesPoint, 0, int(end.Sub(start)/time.Minute)+1)
	for ts := start; ts.Before(end); ts = ts.Add(time.Minute) {
		minuteOfDay := float64(ts.Hour()*60 + ts.Minute())
		v := base + amplitude*math.Sin(2*math.Pi*minuteOfDay/1440)
		v += float64(ts.Unix()%86400) / 86400 * 2
		if (uint32(ts.Unix()/60)+seed)%397 == 0 {
			v *= 3
		}
		points = append(points, seriesPoint{Timestamp: ts, Value: math.Round(v*100) / 100})
	}
	return points
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("encode error", slog.Any("error", err))
	}
}

func logRequests(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}
