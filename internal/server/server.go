package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/wegman-software/geojson2mvt-go/internal/source"
)

// TileContentType is the media type of encoded tiles.
const TileContentType = "application/vnd.mapbox-vector-tile"

// Server exposes a source registry over HTTP.
type Server struct {
	registry *source.Registry
	logger   *zap.Logger
}

// New creates a server over registry.
func New(registry *source.Registry, logger *zap.Logger) *Server {
	return &Server{registry: registry, logger: logger}
}

// Router returns the route table without middleware.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/sources", s.listHandler).Methods(http.MethodGet)
	r.HandleFunc("/sources/{source}", s.infoHandler).Methods(http.MethodGet)
	r.HandleFunc("/sources/{source}", s.loadHandler).Methods(http.MethodPut)
	r.HandleFunc("/sources/{source}", s.updateHandler).Methods(http.MethodPatch)
	r.HandleFunc("/sources/{source}", s.removeHandler).Methods(http.MethodDelete)

	r.HandleFunc("/sources/{source}/tiles/{z:[0-9]+}/{x:[0-9]+}/{y:[0-9]+}.mvt", s.tileHandler).Methods(http.MethodGet)
	r.HandleFunc("/sources/{source}/tiles/{uid}", s.removeTileHandler).Methods(http.MethodDelete)

	r.HandleFunc("/sources/{source}/clusters/{id:[0-9]+}/expansion-zoom", s.expansionZoomHandler).Methods(http.MethodGet)
	r.HandleFunc("/sources/{source}/clusters/{id:[0-9]+}/children", s.childrenHandler).Methods(http.MethodGet)
	r.HandleFunc("/sources/{source}/clusters/{id:[0-9]+}/leaves", s.leavesHandler).Methods(http.MethodGet)

	return r
}

// Handler returns the router wrapped with panic recovery, request logging
// and compression.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.Router()
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{s.logger}))(h)
	h = handlers.CustomLoggingHandler(io.Discard, h, s.logRequest)
	return handlers.CompressHandler(h)
}

func (s *Server) logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	s.logger.Debug("HTTP request",
		zap.String("method", p.Request.Method),
		zap.String("path", p.URL.Path),
		zap.Int("status", p.StatusCode),
		zap.Int("size", p.Size),
		zap.Time("start", p.TimeStamp))
}

type recoveryLogger struct {
	logger *zap.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error("Handler panic", zap.String("panic", fmt.Sprint(v...)))
}
