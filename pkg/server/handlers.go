package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/Sternrassler/catalog-search-cache/pkg/filter"
	"github.com/Sternrassler/catalog-search-cache/pkg/resolver"
)

var errInvalidBody = errors.New("invalid request body")

// statusClientClosedRequest marks requests the client abandoned (nginx's 499).
const statusClientClosedRequest = 499

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("Readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleSearch serves GET /busca?termo=&cidade=.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	termo := q.Get("termo")
	if strings.TrimSpace(termo) == "" {
		writeError(w, http.StatusBadRequest, "termo is required")
		return
	}

	filters := filter.FilterSet{
		"termo":  filter.Str(termo),
		"cidade": filter.Null(),
	}
	if q.Has("cidade") {
		filters["cidade"] = filter.Str(q.Get("cidade"))
	}

	s.resolve(w, r, resolver.Request{
		Filters: filters,
		Path:    UpstreamSearchPath,
		Method:  resolver.MethodGet,
	})
}

// handleAdvancedSearch serves POST /busca/avancada. The body is a JSON object
// with the optional fields termo, cidade, categoria, preco_min, preco_max and
// ordenacao plus any extra keys. Values are passed through as sent; the whole
// object is both the cache key input and the upstream request body.
func (s *Server) handleAdvancedSearch(w http.ResponseWriter, r *http.Request) {
	filters, err := s.decodeAdvancedSearch(r)
	if err != nil {
		hlog.FromRequest(r).Debug().Err(err).Msg("Rejected advanced search body")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.resolve(w, r, resolver.Request{
		Filters: filters,
		Path:    UpstreamAdvancedSearchPath,
		Method:  resolver.MethodPost,
		Body:    filters,
	})
}

func (s *Server) decodeAdvancedSearch(r *http.Request) (filter.FilterSet, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	if int64(len(body)) > s.maxBodyBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", errInvalidBody, s.maxBodyBytes)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after JSON object", errInvalidBody)
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a JSON object", errInvalidBody)
	}

	filters, err := filter.FilterSetFromMap(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidBody, err)
	}

	return filters, nil
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request, req resolver.Request) {
	result, err := s.resolver.Resolve(r.Context(), req)
	if err != nil {
		status, message := errorStatus(err)
		var event *zerolog.Event
		switch {
		case status == statusClientClosedRequest:
			event = hlog.FromRequest(r).Debug()
		case status >= http.StatusInternalServerError && status != http.StatusBadGateway && status != http.StatusGatewayTimeout:
			event = hlog.FromRequest(r).Error()
		default:
			event = hlog.FromRequest(r).Warn()
		}
		event.Err(err).Str("path", req.Path).Msg("Resolve failed")
		writeError(w, status, message)
		return
	}

	hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Str("cache", string(result.Status)).Str("key", result.Key)
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(HeaderCache, string(result.Status))
	w.Header().Set(HeaderCacheKey, result.Key)
	w.WriteHeader(http.StatusOK)
	w.Write(result.Payload)
}

// errorStatus maps resolver errors to an HTTP status and a client-safe message.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, "request canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	case errors.Is(err, resolver.ErrInvalidFilters), errors.Is(err, resolver.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid filters"
	case errors.Is(err, resolver.ErrMalformedUpstreamResponse):
		return http.StatusBadGateway, "malformed upstream response"
	case errors.Is(err, resolver.ErrUpstreamUnavailable):
		return http.StatusBadGateway, "upstream unavailable"
	case errors.Is(err, resolver.ErrStoreUnavailable):
		return http.StatusInternalServerError, "cache store unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
