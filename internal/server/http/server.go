package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rzbill/pulse/internal/runtime"
	"github.com/rzbill/pulse/internal/server/http/controllers"
	"github.com/rzbill/pulse/pkg/log"
)

const shutdownTimeout = 5 * time.Second

// Server is the realtime HTTP gateway.
type Server struct {
	rt     *runtime.Runtime
	srv    *http.Server
	logger log.Logger
}

// New builds the router and wraps it in an http.Server.
func New(rt *runtime.Runtime, logger log.Logger) *Server {
	if logger == nil {
		logger = rt.Logger()
	}
	logger = logger.WithComponent("http")

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(cors)
	r.Use(requestLogger(logger))
	r.Use(rt.Resolver().Middleware)

	controllers.NewControllerRegistry(rt, logger).RegisterAllRoutes(r)
	r.Handle("/metrics", promhttp.Handler())

	return &Server{rt: rt, logger: logger, srv: &http.Server{Handler: r}}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// ListenAndServe serves until ctx is done. Open streams observe ctx through
// their request context, so they end before Shutdown waits on them.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.srv.BaseContext = func(net.Listener) context.Context { return ctx }
	s.logger.Info("http listening", log.Str("addr", l.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(cctx); err != nil {
			s.logger.Warn("http shutdown incomplete", log.Err(err))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			ctx := log.ContextWith(r.Context(), log.RequestIDKey, chimw.GetReqID(r.Context()))
			next.ServeHTTP(ww, r.WithContext(ctx))
			logger.Debug("request",
				log.Str("method", r.Method),
				log.Str("path", r.URL.Path),
				log.Int("status", ww.Status()),
				log.Duration("elapsed", time.Since(start)),
				log.Str(log.RequestIDKey, chimw.GetReqID(r.Context())),
			)
		})
	}
}
