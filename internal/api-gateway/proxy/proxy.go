package proxy

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Targets são as URLs base dos serviços internos
type Targets struct {
	Coordinator   string
	Wallet        string
	Notifications string
}

func rp(to string, log *zap.Logger) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(to)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid upstream url %q", to)
	}
	p := httputil.NewSingleHostReverseProxy(u)
	p.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn("upstream failed", zap.String("upstream", u.Host), zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}
	return p, nil
}

// rewrite troca o prefixo público pelo caminho interno do serviço
func rewrite(from, to string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r2 := r.Clone(r.Context())
		r2.URL.Path = to + strings.TrimPrefix(r.URL.Path, from)
		r2.URL.RawPath = ""
		h.ServeHTTP(w, r2)
	})
}

// New monta o roteamento público do gateway.
// Débito e crédito de carteira ficam de fora: só o coordenador movimenta apostas.
func New(t Targets, allowedOrigins []string, log *zap.Logger) (http.Handler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	coord, err := rp(t.Coordinator, log)
	if err != nil {
		return nil, err
	}
	wallet, err := rp(t.Wallet, log)
	if err != nil {
		return nil, err
	}
	notif, err := rp(t.Notifications, log)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()

	// partidas (ex.: /api/matches/* -> match-coordinator /v1/matches/*)
	mux.Handle("/api/matches", rewrite("/api/matches", "/v1/matches", coord))
	mux.Handle("/api/matches/", rewrite("/api/matches", "/v1/matches", coord))

	// websocket (ex.: /api/ws/matches/{id}?userId= -> /ws/matches/{id})
	mux.Handle("/api/ws/matches/", rewrite("/api/ws", "/ws", coord))

	// wallet: consulta e recarga
	mux.Handle("GET /api/wallet", rewrite("/api/wallet", "/wallet", wallet))
	mux.Handle("POST /api/wallet/deposit", rewrite("/api/wallet", "/wallet", wallet))

	// notificações persistidas
	mux.Handle("GET /api/notifications", rewrite("/api/notifications", "/notifications", notif))

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})(mux), nil
}
