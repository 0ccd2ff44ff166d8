package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/wegman-software/geojson2mvt-go/internal/cluster"
	"github.com/wegman-software/geojson2mvt-go/internal/expression"
	"github.com/wegman-software/geojson2mvt-go/internal/source"
	"github.com/wegman-software/geojson2mvt-go/internal/store"
	"github.com/wegman-software/geojson2mvt-go/internal/tile"
	"github.com/wegman-software/geojson2mvt-go/internal/transport"
	"github.com/wegman-software/geojson2mvt-go/internal/vtile"
)

// maxBody caps request bodies.
const maxBody = 256 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("Failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	var ce *expression.CompileError
	switch {
	case errors.Is(err, source.ErrMissingInput),
		errors.Is(err, source.ErrInvalidInput),
		errors.Is(err, source.ErrNotUpdateable),
		errors.Is(err, source.ErrNotClusterIndex),
		errors.Is(err, transport.ErrUnsupportedScheme),
		errors.As(err, &ce):
		return http.StatusBadRequest
	case errors.Is(err, cluster.ErrClusterNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*source.Source, bool) {
	name := mux.Vars(r)["source"]
	src, ok := s.registry.Lookup(name)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown source " + name})
	}
	return src, ok
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "SERVING"})
}

func (s *Server) listHandler(w http.ResponseWriter, _ *http.Request) {
	names := s.registry.Names()
	infos := make([]source.Info, 0, len(names))
	for _, name := range names {
		if src, ok := s.registry.Lookup(name); ok {
			infos = append(infos, src.Info())
		}
	}
	s.writeJSON(w, http.StatusOK, infos)
}

func (s *Server) infoHandler(w http.ResponseWriter, r *http.Request) {
	src, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, src.Info())
}

// loadHandler replaces the data of a source, creating it when missing.
func (s *Server) loadHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["source"]

	var params source.LoadParams
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&params); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid load request: " + err.Error()})
		return
	}
	params.Source = name

	res, err := s.registry.Source(name).Load(r.Context(), params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// updateHandler applies a diff with the options of the last load.
func (s *Server) updateHandler(w http.ResponseWriter, r *http.Request) {
	src, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var diff store.Diff
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&diff); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid diff: " + err.Error()})
		return
	}

	res, err := src.Update(r.Context(), &diff)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) removeHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["source"]
	if !s.registry.Remove(name) {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown source " + name})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// tileHandler serves an encoded tile. With a uid query parameter the request
// goes through the reload path.
func (s *Server) tileHandler(w http.ResponseWriter, r *http.Request) {
	src, ok := s.lookup(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	id, err := vtile.ParseTileID(vars["z"] + "/" + vars["x"] + "/" + vars["y"])
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	params := source.TileParams{UID: r.URL.Query().Get("uid"), TileID: id}
	load := src.LoadTile
	if params.UID != "" {
		load = func(p source.TileParams) (*tile.Result, error) { return src.ReloadTile(r.Context(), p) }
	}

	res, err := load(params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if res == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", TileContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(res.RawData)
}

func (s *Server) removeTileHandler(w http.ResponseWriter, r *http.Request) {
	src, ok := s.lookup(w, r)
	if !ok {
		return
	}
	src.RemoveTile(mux.Vars(r)["uid"])
	w.WriteHeader(http.StatusNoContent)
}

func clusterID(r *http.Request) (int, error) {
	return strconv.Atoi(mux.Vars(r)["id"])
}

func (s *Server) expansionZoomHandler(w http.ResponseWriter, r *http.Request) {
	src, ok := s.lookup(w, r)
	if !ok {
		return
	}
	id, err := clusterID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid cluster id"})
		return
	}

	zoom, err := src.ClusterExpansionZoom(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"zoom": zoom})
}

func (s *Server) childrenHandler(w http.ResponseWriter, r *http.Request) {
	src, ok := s.lookup(w, r)
	if !ok {
		return
	}
	id, err := clusterID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid cluster id"})
		return
	}

	features, err := src.ClusterChildren(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeFeatures(w, features)
}

func (s *Server) leavesHandler(w http.ResponseWriter, r *http.Request) {
	src, ok := s.lookup(w, r)
	if !ok {
		return
	}
	id, err := clusterID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid cluster id"})
		return
	}

	limit, offset := 10, 0
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid parameter limit"})
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid parameter offset"})
			return
		}
	}

	features, err := src.ClusterLeaves(id, limit, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeFeatures(w, features)
}

func (s *Server) writeFeatures(w http.ResponseWriter, features []*geojson.Feature) {
	fc := geojson.NewFeatureCollection()
	fc.Features = features
	if fc.Features == nil {
		fc.Features = []*geojson.Feature{}
	}
	s.writeJSON(w, http.StatusOK, fc)
}
