// Package server exposes the session's intents and state over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"mintdapp/internal/config"
	"mintdapp/internal/hmacauth"
	"mintdapp/internal/idempotency"
	"mintdapp/internal/ratelimit"
	"mintdapp/internal/session"
	"mintdapp/internal/wallet"
)

const (
	headerIdempotencyKey = "X-Idempotency-Key"
	headerRequestID      = "X-Request-Id"

	intentConnect = "connect"
	intentMint    = "mint"

	maxIntentBody = 1 << 16
)

// Coordinator is the session surface the HTTP layer drives.
type Coordinator interface {
	RequestConnect(ctx context.Context) error
	RequestMint(ctx context.Context) (*session.MintTicket, error)
	State(ctx context.Context) (session.Snapshot, error)
	SubscribeNotifications(ch chan<- session.Notification) event.Subscription
}

type Server struct {
	cfg        *config.AppConfig
	coord      Coordinator
	store      idempotency.Store
	hmac       *hmacauth.Verifier
	limiter    *ratelimit.Limiter
	httpServer *http.Server
	metrics    *metricsRegistry
	log        log.Logger

	dbHealthFn     func(context.Context) error
	walletHealthFn func(context.Context) error
	hasWallet      bool

	notifySub event.Subscription
}

func NewServer(cfg *config.AppConfig, coord Coordinator, provider wallet.Provider, store idempotency.Store) *Server {
	s := &Server{
		cfg:   cfg,
		coord: coord,
		store: store,
		hmac: &hmacauth.Verifier{
			Secret:  cfg.Service.IntentSecret,
			MaxSkew: cfg.Service.HMACClockSkew,
		},
		limiter:   ratelimit.New(cfg.Service.RateLimitRPS, cfg.Service.RateLimitBurst, 0),
		metrics:   newMetricsRegistry(),
		log:       log.New("module", "server"),
		hasWallet: provider.HasWallet(),
	}

	if checker, ok := store.(interface{ Ping(context.Context) error }); ok {
		s.dbHealthFn = checker.Ping
	}
	if checker, ok := provider.(wallet.HealthChecker); ok {
		s.walletHealthFn = checker.Ping
	}

	intent := func(h http.HandlerFunc) http.Handler {
		return s.limiter.Middleware(s.hmac.Middleware(h))
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/wallet/connect", intent(s.handleConnect))
	mux.Handle("/api/v1/mint", intent(s.handleMint))
	mux.HandleFunc("/api/v1/state", s.handleState)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/collection", s.handleCollection)
	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.Handle("/api/v1/metrics", s.refreshGauges(s.metrics.handler()))

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           requestIDMiddleware(mux),
		ReadHeaderTimeout: 15 * time.Second,
	}

	s.watchNotifications()
	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	s.log.Info("API listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.notifySub.Unsubscribe()
	return s.httpServer.Shutdown(ctx)
}

// watchNotifications counts every notification the session raises.
func (s *Server) watchNotifications() {
	ch := make(chan session.Notification, 16)
	sub := s.coord.SubscribeNotifications(ch)
	s.notifySub = sub
	go func() {
		for {
			select {
			case n := <-ch:
				s.metrics.incNotification(n.Code)
			case <-sub.Err():
				return
			}
		}
	}()
}

type mintResponse struct {
	Mint session.MintStatus `json:"mint"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	if err := s.coord.RequestConnect(ctx); err != nil {
		s.metrics.incIntent(intentConnect, resultLabel(err))
		s.writeIntentError(w, err)
		return
	}
	s.metrics.incIntent(intentConnect, "connected")

	snap, err := s.coord.State(ctx)
	if err != nil {
		s.writeIntentError(w, err)
		return
	}
	s.metrics.observe(snap)
	writeJSON(w, http.StatusOK, snap)
}

// handleMint accepts one mint. With an X-Idempotency-Key the first accepted
// response is replayed for retries instead of submitting another
// transaction. ?wait=true holds the request until the mint settles.
func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxIntentBody))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	fingerprint := idempotency.Fingerprint(intentMint, body)
	if key != "" {
		existing, err := s.store.Get(ctx, intentMint+":"+key)
		if err != nil {
			s.log.Warn("Idempotency lookup failed", "key", key, "err", err)
		}
		if existing != nil {
			if existing.Fingerprint != fingerprint {
				s.metrics.incIntent(intentMint, "key_reused")
				http.Error(w, "idempotency key was used for a different request", http.StatusUnprocessableEntity)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(existing.StatusCode)
			_, _ = w.Write(existing.Response)
			s.metrics.incIntent(intentMint, "cached")
			return
		}
	}

	ticket, err := s.coord.RequestMint(ctx)
	if err != nil {
		s.metrics.incIntent(intentMint, resultLabel(err))
		s.writeIntentError(w, err)
		return
	}
	s.metrics.incIntent(intentMint, "accepted")

	status := http.StatusAccepted
	resp := mintResponse{Mint: session.MintStatus{ID: ticket.ID, State: session.MintSubmitted}}
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		st, err := ticket.Wait(ctx)
		if st.State == "" {
			// the client went away before the mint settled
			s.log.Debug("Mint wait abandoned", "mint", ticket.ID, "err", err)
			return
		}
		status, resp.Mint = http.StatusOK, st
	}

	b, _ := json.Marshal(resp)
	if key != "" {
		now := time.Now()
		record := idempotency.Record{
			Intent:      intentMint,
			Fingerprint: fingerprint,
			StatusCode:  status,
			Response:    b,
			CreatedAt:   now,
			ExpiresAt:   now.Add(s.cfg.Service.IdempotencyWindow),
		}
		if err := s.store.Save(ctx, intentMint+":"+key, record); err != nil {
			s.log.Warn("Idempotency save failed", "key", key, "err", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap, err := s.coord.State(r.Context())
	if err != nil {
		s.writeIntentError(w, err)
		return
	}
	s.metrics.observe(snap)
	writeJSON(w, http.StatusOK, snap)
}

// handleEvents streams notifications as server-sent events, starting with
// the current state.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	ch := make(chan session.Notification, 16)
	sub := s.coord.SubscribeNotifications(ch)
	defer sub.Unsubscribe()

	snap, err := s.coord.State(ctx)
	if err != nil {
		s.writeIntentError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := writeEvent(w, "state", snap); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case n := <-ch:
			if err := writeEvent(w, string(n.Code), n); err != nil {
				return
			}
			flusher.Flush()
		case <-sub.Err():
			return
		case <-ctx.Done():
			return
		}
	}
}

func writeEvent(w io.Writer, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}

type collectionResponse struct {
	Contract             string `json:"contract"`
	RequiredChainID      string `json:"requiredChainId"`
	MaxSupply            uint64 `json:"maxSupply"`
	TwitterURL           string `json:"twitterUrl,omitempty"`
	CollectionURL        string `json:"collectionUrl,omitempty"`
	MarketplaceAssetBase string `json:"marketplaceAssetBase,omitempty"`
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, collectionResponse{
		Contract:             s.cfg.Contract.Address,
		RequiredChainID:      s.cfg.Contract.RequiredChainID,
		MaxSupply:            s.cfg.Contract.MaxSupply,
		TwitterURL:           s.cfg.Links.TwitterURL(),
		CollectionURL:        s.cfg.Links.CollectionURL,
		MarketplaceAssetBase: s.cfg.Links.MarketplaceAssetBase,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	walletInfo := struct {
		Present   bool    `json:"present"`
		Connected bool    `json:"connected"`
		LatencyMs float64 `json:"latency_ms"`
		Error     string  `json:"error,omitempty"`
	}{Present: s.hasWallet}

	if s.walletHealthFn != nil {
		start := time.Now()
		rpcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.walletHealthFn(rpcCtx); err != nil {
			walletInfo.Error = err.Error()
			overallHealthy = false
		} else {
			walletInfo.Connected = true
			walletInfo.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
		}
	}

	dbInfo := struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}{Connected: true}

	if s.dbHealthFn != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.dbHealthFn(dbCtx); err != nil {
			dbInfo.Connected = false
			dbInfo.Error = err.Error()
			overallHealthy = false
		}
	}

	status := "healthy"
	if !overallHealthy {
		status = "degraded"
	}

	resp := struct {
		Status   string `json:"status"`
		Wallet   any    `json:"wallet"`
		Database any    `json:"database"`
	}{
		Status:   status,
		Wallet:   walletInfo,
		Database: dbInfo,
	}

	code := http.StatusOK
	if !overallHealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (s *Server) refreshGauges(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if snap, err := s.coord.State(r.Context()); err == nil {
			s.metrics.observe(snap)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeIntentError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.log.Warn("Intent failed", "err", err)
	}
	http.Error(w, err.Error(), code)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNoWallet):
		return http.StatusPreconditionFailed
	case errors.Is(err, session.ErrNotConnected),
		errors.Is(err, session.ErrBusy),
		errors.Is(err, session.ErrConnectInProgress):
		return http.StatusConflict
	case errors.Is(err, session.ErrUserRejected):
		return http.StatusForbidden
	case errors.Is(err, session.ErrProviderUnavailable),
		errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, session.ErrNoWallet):
		return "no_wallet"
	case errors.Is(err, session.ErrNotConnected):
		return "not_connected"
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrConnectInProgress):
		return "busy"
	case errors.Is(err, session.ErrUserRejected):
		return "rejected"
	case errors.Is(err, session.ErrProviderUnavailable):
		return "unavailable"
	default:
		return "failed"
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, "encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(headerRequestID, id)
		}
		w.Header().Set(headerRequestID, id)
		log.Trace("HTTP request", "id", id, "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
