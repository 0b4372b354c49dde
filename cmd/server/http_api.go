package main

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pipegrid.ai/internal/protocol"
	"pipegrid.ai/internal/sim/world"
	"pipegrid.ai/internal/transport/observer"
	"pipegrid.ai/internal/transport/ws"
)

const apiTimeout = 5 * time.Second

func newMux(w *world.World, idx runtimeIndex, logger *log.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(newMetricsRegistry(w, idx), promhttp.HandlerOpts{}))

	mux.HandleFunc("/v1/networks", networksHandler(w))
	mux.HandleFunc("/v1/structures", registerHandler(w))
	mux.HandleFunc("/v1/structures/", structureHandler(w))

	obsSrv := observer.NewServer(w, logger)
	mux.HandleFunc("/v1/observer/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", obsSrv.WSHandler())
	mux.HandleFunc("/v1/ws", ws.NewServer(w, logger).Handler())

	if envBool("PG_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			resp := struct {
				WorldID string             `json:"world_id"`
				Tick    uint64             `json:"tick"`
				Metrics world.WorldMetrics `json:"metrics"`
			}{
				WorldID: w.ID(),
				Tick:    w.CurrentTick(),
				Metrics: w.Metrics(),
			}
			writeJSON(rw, http.StatusOK, resp)
		})
	} else {
		logger.Printf("admin endpoints disabled (PG_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("PG_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

func networksHandler(w *world.World) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), apiTimeout)
		defer cancel()
		msg, err := w.RequestNetworks(ctx)
		if err != nil {
			writeError(rw, err)
			return
		}
		writeJSON(rw, http.StatusOK, msg)
	}
}

// registerHandler accepts a StructureSpec body and waits for the next tick boundary.
func registerHandler(w *world.World) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var spec world.StructureSpec
		dec := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 64*1024))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&spec); err != nil {
			writeJSON(rw, http.StatusBadRequest, protocol.NewError(protocol.ErrBadRequest, err.Error()))
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), apiTimeout)
		defer cancel()
		info, err := w.RequestRegister(ctx, spec)
		if err != nil {
			writeError(rw, err)
			return
		}
		writeJSON(rw, http.StatusCreated, protocol.StructureMsg{
			Type:            protocol.TypeStructure,
			ProtocolVersion: protocol.Version,
			Tick:            w.CurrentTick(),
			Structure:       info,
		})
	}
}

func structureHandler(w *world.World) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/v1/structures/")
		if id == "" || strings.Contains(id, "/") {
			http.NotFound(rw, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), apiTimeout)
		defer cancel()

		switch r.Method {
		case http.MethodGet:
			info, err := w.RequestStructure(ctx, id)
			if err != nil {
				writeError(rw, err)
				return
			}
			writeJSON(rw, http.StatusOK, protocol.StructureMsg{
				Type:            protocol.TypeStructure,
				ProtocolVersion: protocol.Version,
				Tick:            w.CurrentTick(),
				Structure:       info,
			})
		case http.MethodDelete:
			if err := w.RequestDeregister(ctx, id); err != nil {
				writeError(rw, err)
				return
			}
			writeJSON(rw, http.StatusOK, protocol.AckMsg{
				Type:            protocol.TypeAck,
				ProtocolVersion: protocol.Version,
				Tick:            w.CurrentTick(),
				Ref:             protocol.TypeDeregister,
				ID:              id,
			})
		default:
			rw.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

func writeError(rw http.ResponseWriter, err error) {
	code := world.ErrorCode(err)
	writeJSON(rw, httpStatus(code), protocol.NewError(code, err.Error()))
}

func httpStatus(code string) int {
	switch code {
	case protocol.ErrBadRequest, protocol.ErrProtoBadRequest, protocol.ErrUnknownDef:
		return http.StatusBadRequest
	case protocol.ErrCellOccupied, protocol.ErrDuplicateID:
		return http.StatusConflict
	case protocol.ErrNotFound:
		return http.StatusNotFound
	case protocol.ErrWorldBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
