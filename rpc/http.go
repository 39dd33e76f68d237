package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"gossipchain/core"
	"gossipchain/observability"
)

const maxRequestBytes = 1 << 20

// JSON-RPC 2.0 error codes. The -327xx range follows the spec; the -320xx
// range is reserved for application errors surfaced by the settlement engine.
const (
	codeParseError      = -32700
	codeInvalidRequest  = -32600
	codeMethodNotFound  = -32601
	codeInvalidParams   = -32602
	codeServerError     = -32000
	codeUnauthorized    = -32001
	codeNotFound        = -32004
	codeRateLimited     = -32010
	codeAlreadyRevealed = -32020
	codeNotRevealed     = -32021
	codePaymentRequired = -32022
	codeShareExists     = -32023
)

// RPCRequest is a JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RPCResponse is a JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Server exposes the node over JSON-RPC.
type Server struct {
	node      *core.Node
	logger    *slog.Logger
	authToken string

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewServer builds an RPC server around the node. When authToken is empty it
// falls back to the GOSSIP_RPC_TOKEN environment variable; if that is empty
// too, mutating methods are open (useful for local development only).
func NewServer(node *core.Node, logger *slog.Logger, authToken string) *Server {
	token := strings.TrimSpace(authToken)
	if token == "" {
		token = strings.TrimSpace(os.Getenv("GOSSIP_RPC_TOKEN"))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		node:      node,
		logger:    logger,
		authToken: token,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Router assembles the HTTP surface: JSON-RPC on POST /, health and
// prometheus metrics beside it.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	return r
}

// Start serves the router on addr and blocks.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) limiter(source string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	lim, ok := s.limiters[source]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(20), 40)
		s.limiters[source] = lim
	}
	return lim
}

func clientSource(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const scheme = "Bearer "
	if !strings.HasPrefix(header, scheme) {
		return false
	}
	presented := strings.TrimSpace(strings.TrimPrefix(header, scheme))
	return subtle.ConstantTimeCompare([]byte(presented), []byte(s.authToken)) == 1
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if !s.limiter(clientSource(r)).Allow() {
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "unable to read request body")
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload")
		return
	}
	if req.JSONRPC != "2.0" || strings.TrimSpace(req.Method) == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid JSON-RPC request")
		return
	}

	start := time.Now()
	metrics := observability.ModuleMetrics()

	handler, needsAuth, ok := s.route(req.Method)
	if !ok {
		metrics.ObserveRequest(req.Method, "unknown", time.Since(start))
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found")
		return
	}
	if needsAuth && !s.authorized(r) {
		metrics.RecordError(req.Method, "unauthorized")
		metrics.ObserveRequest(req.Method, "error", time.Since(start))
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "missing or invalid bearer token")
		return
	}

	result, rpcErr := handler(&req)
	if rpcErr != nil {
		metrics.RecordError(req.Method, codeLabel(rpcErr.Code))
		metrics.ObserveRequest(req.Method, "error", time.Since(start))
		s.logger.Warn("rpc request failed",
			"method", req.Method,
			"code", rpcErr.Code,
			"message", rpcErr.Message,
		)
		writeError(w, httpStatusFor(rpcErr.Code), req.ID, rpcErr.Code, rpcErr.Message)
		return
	}
	metrics.ObserveRequest(req.Method, "ok", time.Since(start))
	writeResult(w, req.ID, result)
}

type methodHandler func(*RPCRequest) (interface{}, *RPCError)

// route returns the handler for a method and whether it mutates state and
// therefore requires the bearer token.
func (s *Server) route(method string) (methodHandler, bool, bool) {
	switch method {
	case "gossip_create":
		return s.handleGossipCreate, true, true
	case "gossip_reveal":
		return s.handleGossipReveal, true, true
	case "gossip_share":
		return s.handleGossipShare, true, true
	case "gossip_revealShared":
		return s.handleGossipRevealShared, true, true
	case "gossip_withdraw":
		return s.handleGossipWithdraw, true, true
	case "gossip_get":
		return s.handleGossipGet, false, true
	case "gossip_getShared":
		return s.handleGossipGetShared, false, true
	case "gossip_vault":
		return s.handleGossipVault, false, true
	case "gossip_balance":
		return s.handleGossipBalance, false, true
	case "gossip_events":
		return s.handleGossipEvents, false, true
	default:
		return nil, false, false
	}
}

func httpStatusFor(code int) int {
	switch code {
	case codeUnauthorized:
		return http.StatusUnauthorized
	case codeNotFound:
		return http.StatusNotFound
	case codeRateLimited:
		return http.StatusTooManyRequests
	case codeInvalidParams, codeInvalidRequest, codeParseError,
		codeAlreadyRevealed, codeNotRevealed, codePaymentRequired, codeShareExists:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func codeLabel(code int) string {
	switch code {
	case codeUnauthorized:
		return "unauthorized"
	case codeNotFound:
		return "not_found"
	case codeInvalidParams:
		return "invalid_params"
	case codeAlreadyRevealed:
		return "already_revealed"
	case codeNotRevealed:
		return "not_revealed"
	case codePaymentRequired:
		return "payment_required"
	case codeShareExists:
		return "share_exists"
	default:
		return "server_error"
	}
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func writeError(w http.ResponseWriter, status int, id json.RawMessage, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(RPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	})
}
