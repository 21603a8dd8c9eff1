// Package httpapi implements the Request Adapter of spec.md §4.E: it
// translates HTTP verbs and paths into engine/batch calls and emits the
// bit-exact status codes and headers §4.E specifies.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fenilsonani/kvstore/internal/batch"
	"github.com/fenilsonani/kvstore/internal/engine"
	"github.com/fenilsonani/kvstore/internal/store"
)

// Server wires the Engine and Batch Executor into chi routes.
type Server struct {
	engine   *engine.Engine
	executor *batch.Executor
	store    *store.Store
	metrics  *Metrics
	logger   *zap.Logger
	token    string
	maxBody  int64
}

// Config configures a Server.
type Config struct {
	Engine      *engine.Engine
	Executor    *batch.Executor
	Store       *store.Store
	Metrics     *Metrics
	Logger      *zap.Logger
	Token       string
	MaxBodyBytes int64 // default 256 MiB per spec.md §5 resource limits
}

// NewServer builds the routed http.Handler for the Request Adapter.
func NewServer(cfg Config) http.Handler {
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 256 << 20
	}
	s := &Server{
		engine:   cfg.Engine,
		executor: cfg.Executor,
		store:    cfg.Store,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		token:    cfg.Token,
		maxBody:  maxBody,
	}

	r := chi.NewRouter()

	// Unauthenticated surface: health probe and metrics exposition.
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promHandler(cfg.Metrics))

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(s.token))
		r.Use(accessLog(s.logger, s.metrics))

		r.Get("/keys", s.handleList)
		r.Post("/batch", s.handleBatch)

		r.Put("/*", s.handlePut)
		r.Get("/*", s.handleGet)
		r.Head("/*", s.handleHead)
		r.Delete("/*", s.handleDelete)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// keyFromPath extracts the raw, non-percent-decoded path segment after the
// leading slash, per spec.md §4.E's key-parsing rule: the Adapter does not
// decode or otherwise interpret the key.
func keyFromPath(r *http.Request) string {
	raw := r.URL.EscapedPath()
	if len(raw) > 0 && raw[0] == '/' {
		raw = raw[1:]
	}
	return raw
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	key := keyFromPath(r)

	body := http.MaxBytesReader(w, r.Body, s.maxBody)
	value, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, payloadTooLarge("request body exceeds limit"))
			return
		}
		// Not a size violation — e.g. the peer disconnected mid-upload.
		writeError(w, badRequest("failed to read request body: "+err.Error()))
		return
	}

	res, err := s.engine.Put(key, value)
	if err != nil {
		writeError(w, engineError(err))
		return
	}

	s.refreshGauges()
	if res.GCObjects > 0 {
		s.metrics.GCObjectsTotal.Add(float64(res.GCObjects))
	}

	status := http.StatusCreated
	if res.Deduplicated {
		status = http.StatusOK
		s.metrics.DedupHitsTotal.Inc()
	}

	w.Header().Set("X-Hash", res.Hash.String())
	w.Header().Set("X-Hash-Algorithm", "xxh3_128")
	w.Header().Set("X-Deduplicated", strconv.FormatBool(res.Deduplicated))
	w.WriteHeader(status)
	_, _ = w.Write([]byte(res.Hash.String()))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := keyFromPath(r)
	res, err := s.engine.Get(key)
	if err != nil {
		writeError(w, engineError(err))
		return
	}

	setMetaHeaders(w, res.Meta)
	w.Header().Set("Content-Length", strconv.FormatUint(res.Meta.Size, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Value)
}

func (s *Server) handleHead(w http.ResponseWriter, r *http.Request) {
	key := keyFromPath(r)
	meta, err := s.engine.Head(key)
	if err != nil {
		writeError(w, engineError(err))
		return
	}
	setMetaHeaders(w, meta)
	w.Header().Set("Content-Length", strconv.FormatUint(meta.Size, 10))
	w.WriteHeader(http.StatusOK)
}

func setMetaHeaders(w http.ResponseWriter, meta engine.KeyMeta) {
	w.Header().Set("X-Hash", meta.Hash.String())
	w.Header().Set("X-Hash-Algorithm", "xxh3_128")
	w.Header().Set("X-Created-At", strconv.FormatInt(meta.CreatedAt, 10))
	// X-Ref-Count is exposed for compatibility only; see SPEC_FULL §9.
	w.Header().Set("X-Ref-Count", strconv.FormatUint(meta.Refs, 10))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := keyFromPath(r)
	res, err := s.engine.Delete(key)
	if err != nil {
		writeError(w, engineError(err))
		return
	}
	s.refreshGauges()
	if res.GCObjects > 0 {
		s.metrics.GCObjectsTotal.Add(float64(res.GCObjects))
	}
	w.WriteHeader(http.StatusNoContent)
}

type listResponse struct {
	Keys  []listEntryJSON `json:"keys"`
	Total int             `json:"total"`
}

type listEntryJSON struct {
	Key       string `json:"key"`
	Hash      string `json:"hash"`
	Size      uint64 `json:"size"`
	Refs      uint64 `json:"refs"`
	CreatedAt int64  `json:"created_at"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := engine.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, badRequest("limit must be an integer"))
			return
		}
		limit = n
	}
	if limit < 1 {
		limit = 1
	}
	if limit > engine.MaxListLimit {
		limit = engine.MaxListLimit
	}

	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, badRequest("offset must be a non-negative integer"))
			return
		}
		offset = n
	}

	entries, total, err := s.engine.List(offset, limit)
	if err != nil {
		writeError(w, engineError(err))
		return
	}

	resp := listResponse{Total: total, Keys: make([]listEntryJSON, len(entries))}
	for i, e := range entries {
		resp.Keys[i] = listEntryJSON{
			Key:       e.Key,
			Hash:      e.Meta.Hash.String(),
			Size:      e.Meta.Size,
			Refs:      e.Meta.Refs,
			CreatedAt: e.Meta.CreatedAt,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

type batchOpJSON struct {
	Op    string `json:"op"`
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

type batchResultJSON struct {
	Key     string `json:"key"`
	Op      string `json:"op,omitempty"`
	Hash    string `json:"hash,omitempty"`
	Created *bool  `json:"created,omitempty"`
	Found   *bool  `json:"found,omitempty"`
	Value   string `json:"value,omitempty"`
	Deleted *bool  `json:"deleted,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.maxBody)
	var ops []batchOpJSON
	if err := json.NewDecoder(body).Decode(&ops); err != nil {
		writeError(w, badRequest("malformed batch JSON: "+err.Error()))
		return
	}

	if len(ops) > s.executor.MaxOps() {
		writeError(w, badRequest("batch exceeds maximum operation count"))
		return
	}

	translated := make([]batch.Op, len(ops))
	for i, op := range ops {
		translated[i] = batch.Op{Key: op.Key, Value: []byte(op.Value)}
		switch op.Op {
		case "put":
			translated[i].Kind = batch.OpPut
		case "get":
			translated[i].Kind = batch.OpGet
		case "delete":
			translated[i].Kind = batch.OpDelete
		default:
			writeError(w, badRequest("unknown batch op \""+op.Op+"\""))
			return
		}
	}

	results, err := s.executor.Run(translated)
	if err != nil {
		writeError(w, &apiError{status: http.StatusInternalServerError, message: err.Error()})
		return
	}

	out := make([]batchResultJSON, len(results))
	gcObjects := 0
	for i, res := range results {
		out[i] = batchResultJSON{
			Key: res.Key, Op: string(res.Kind), Hash: res.Hash,
			Created: res.Created, Found: res.Found, Deleted: res.Deleted, Error: res.Error,
		}
		if res.Found != nil && *res.Found {
			out[i].Value = string(res.Value)
		}
		gcObjects += res.GCObjects
	}

	s.refreshGauges()
	if gcObjects > 0 {
		s.metrics.GCObjectsTotal.Add(float64(gcObjects))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"results": out})
}

// refreshGauges recomputes keys_total and objects_total. This is an O(n)
// bucket-stats read (bbolt tracks KeyN per bucket), cheap relative to the
// transaction that just completed, and matches spec.md §4.C LIST's own
// framing of "total" as a non-transactional hint rather than a value that
// must be maintained incrementally.
func (s *Server) refreshGauges() {
	_ = s.store.View(func(tx *store.Tx) error {
		s.metrics.KeysTotal.Set(float64(tx.Count(store.TreeKeys)))
		s.metrics.ObjectsTotal.Set(float64(tx.Count(store.TreeObjects)))
		return nil
	})
}
