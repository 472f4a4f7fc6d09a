package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/katoapp/agrimarket/internal/access"
	"github.com/katoapp/agrimarket/internal/apperr"
	"github.com/katoapp/agrimarket/internal/auth"
	"github.com/katoapp/agrimarket/internal/events"
	"github.com/katoapp/agrimarket/internal/logger"
	"github.com/katoapp/agrimarket/internal/metrics"
	"go.uber.org/zap"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type RouterOptions struct {
	Service string
	Timeout time.Duration
	Log     *zap.Logger
}

// Registrar mounts a group of authenticated routes.
type Registrar interface {
	Register(r chi.Router)
}

func NewRouter(opts RouterOptions) *chi.Mux {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, trace, logger.Middleware(opts.Log), middleware.Recoverer)
	r.Use(metrics.Middleware(opts.Service))
	r.Use(middleware.Timeout(opts.Timeout))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())
	return r
}

// Mount registers hs behind bearer token authentication.
func Mount(r chi.Router, secret string, hs ...Registrar) {
	r.Group(func(r chi.Router) {
		r.Use(Authenticate(secret))
		for _, h := range hs {
			h.Register(r)
		}
	})
}

// trace carries the request id into emitted events.
func trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := events.WithTrace(r.Context(), middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type actorKey struct{}

// Authenticate resolves the bearer token into an access.Actor. Requests
// without a valid token never reach a handler.
func Authenticate(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			tok, ok := strings.CutPrefix(h, "Bearer ")
			if !ok || tok == "" {
				writeError(w, r, apperr.Unauthenticated("missing bearer token"))
				return
			}
			claims, err := auth.ValidateToken(secret, tok)
			if err != nil {
				writeError(w, r, apperr.Unauthenticated("invalid or expired token"))
				return
			}
			actor, err := claims.Actor()
			if err != nil {
				writeError(w, r, apperr.Unauthenticated("token carries an invalid identity"))
				return
			}
			ctx := context.WithValue(r.Context(), actorKey{}, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFrom returns the authenticated actor, or the zero Actor, which every
// service refuses.
func ActorFrom(ctx context.Context) access.Actor {
	a, _ := ctx.Value(actorKey{}).(access.Actor)
	return a
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.HTTPStatus(err)
	if code >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", zap.Error(err))
	}
	kind := apperr.KindOf(err)
	if kind == apperr.KindUnknown {
		kind = apperr.KindStorage
	}
	writeJSON(w, code, errorBody{Error: kind.String(), Message: apperr.PublicMessage(err)})
}

const maxBody = 1 << 20

// decode reads a JSON body, rejecting unknown fields and trailing data.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is required")
		}
		return apperr.Validation("invalid json: %v", err)
	}
	if dec.More() {
		return apperr.Validation("request body must hold a single json object")
	}
	return nil
}

// page reads limit and offset query parameters.
func page(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if limit, err = queryInt(q.Get("limit")); err != nil {
		return 0, 0, apperr.Validation("limit must be an integer")
	}
	if offset, err = queryInt(q.Get("offset")); err != nil {
		return 0, 0, apperr.Validation("offset must be an integer")
	}
	return limit, offset, nil
}

func queryInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("not a non-negative integer")
	}
	return n, nil
}
