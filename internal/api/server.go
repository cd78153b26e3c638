package api

import (
	"context"
	"net/http"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ssocolow/zk-hyle/internal/idempotency"
	"github.com/ssocolow/zk-hyle/internal/interest"
	"github.com/ssocolow/zk-hyle/internal/upstream"
	"github.com/ssocolow/zk-hyle/pkg/httpx"
)

var log = logging.Logger("gateway/api")

const (
	codeBadRequest          = "bad_request"
	codeUpstreamUnreachable = "upstream_unreachable"
	codePersistenceFailed   = "persistence_failed"
	codeUnexpected          = "unexpected"
	codeMethodNotAllowed    = "method_not_allowed"
	codeNotFound            = "not_found"
	codeTooLarge            = "request_too_large"
	codeKeyReused           = "idempotency_key_reused"

	maxRequestBytes = 5 << 20
)

// InterestStore is the persistence behind the hashed interest routes.
type InterestStore interface {
	Merge(ctx context.Context, address string, fields map[string]any) error
	Get(ctx context.Context, address string) (interest.Record, bool, error)
}

type Server struct {
	upstream        upstream.Forwarder
	interests       InterestStore
	strictInterests bool
	idempotency     idempotency.Store
	idempotencyTTL  time.Duration
	idempotencyLock time.Duration
	registry        *prometheus.Registry
	metrics         *metrics
}

type Option func(*Server)

// WithStrictInterests rejects hashed interest submissions missing any of m1..m4
// with 400 instead of silently ignoring them.
func WithStrictInterests(strict bool) Option {
	return func(s *Server) {
		s.strictInterests = strict
	}
}

// WithIdempotency enables Idempotency-Key replay on the relay routes.
func WithIdempotency(store idempotency.Store, ttl, lockTTL time.Duration) Option {
	return func(s *Server) {
		s.idempotency = store
		s.idempotencyTTL = ttl
		s.idempotencyLock = lockTTL
	}
}

func WithRegistry(registry *prometheus.Registry) Option {
	return func(s *Server) {
		if registry != nil {
			s.registry = registry
		}
	}
}

func NewServer(forwarder upstream.Forwarder, interests InterestStore, opts ...Option) *Server {
	s := &Server{
		upstream:        forwarder,
		interests:       interests,
		idempotencyTTL:  24 * time.Hour,
		idempotencyLock: 30 * time.Second,
		registry:        prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = newMetrics(s.registry)
	return s
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/create-meetup", s.relayHandler(relayRoute{name: "create-meetup", path: upstream.PathRegisterContract}))
	mux.HandleFunc("/post-root", s.relayHandler(relayRoute{name: "post-root", path: upstream.PathPostRoot}))
	mux.HandleFunc("/receive-hashed-interests", s.handleReceiveHashedInterests)
	mux.HandleFunc("/hashed-interests/", s.handleHashedInterestsByAddress)

	return s.withRequestLogging(s.withRecovery(mux))
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		httpx.WriteError(w, http.StatusNotFound, codeNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		httpx.WriteError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Hello World!"))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
