package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"seostats.local/internal/app/seostats"
	"seostats.local/internal/app/seostats/repo"
	"seostats.local/internal/mozscape"
	"seostats.local/internal/platform/httpmiddleware"
)

const maxBodyBytes = 64 << 10

type URLMetricsRequest struct {
	Targets []string `json:"targets"`
	Cols    []string `json:"cols"`
}

type HistoryResponse struct {
	Target    string             `json:"target"`
	Snapshots []repo.SnapshotRow `json:"snapshots"`
}

func freeStatsSingle(svc MetricsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.FreeStats(r.Context(), mozscape.SingleTarget(pathTarget(r)))
		respond(w, r, res, err)
	}
}

func freeStatsBatch(svc MetricsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		targets, ok := bindTargets(w, r)
		if !ok {
			return
		}
		res, err := svc.FreeStats(r.Context(), mozscape.BatchTargets(targets))
		respond(w, r, res, err)
	}
}

func domainAuthoritySingle(svc MetricsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.DomainAuthority(r.Context(), mozscape.SingleTarget(pathTarget(r)))
		respond(w, r, res, err)
	}
}

func domainAuthorityBatch(svc MetricsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		targets, ok := bindTargets(w, r)
		if !ok {
			return
		}
		res, err := svc.DomainAuthority(r.Context(), mozscape.BatchTargets(targets))
		respond(w, r, res, err)
	}
}

// urlMetricsSingle ?cols=title,pda，也可以写多次 cols。
func urlMetricsSingle(svc MetricsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cols, err := mozscape.ParseColumns(r.URL.Query()["cols"])
		if err != nil {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		res, err := svc.URLMetrics(r.Context(), mozscape.SingleTarget(pathTarget(r)), cols)
		respond(w, r, res, err)
	}
}

func urlMetricsBatch(svc MetricsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req URLMetricsRequest
		if !bindJSON(w, r, &req) {
			return
		}
		cols, err := mozscape.ParseColumns(req.Cols)
		if err != nil {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		res, err := svc.URLMetrics(r.Context(), mozscape.BatchTargets(req.Targets), cols)
		respond(w, r, res, err)
	}
}

func history(h HistoryReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := pathTarget(r)
		if err := seostats.ValidateTarget(target); err != nil {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				httpmiddleware.WriteError(w, r, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = n
		}
		rows, err := h.History(r.Context(), target, limit)
		if err != nil {
			slog.Error("history query failed", "target", target, "err", err)
			httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "history query failed")
			return
		}
		httpmiddleware.WriteJSON(w, http.StatusOK, HistoryResponse{Target: target, Snapshots: rows})
	}
}

// pathTarget ?target= 优先于路径里的目标。
func pathTarget(r *http.Request) string {
	if q := strings.TrimSpace(r.URL.Query().Get("target")); q != "" {
		return q
	}
	return r.PathValue("target")
}

func bindTargets(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var targets []string
	if !bindJSON(w, r, &targets) {
		return nil, false
	}
	return targets, true
}

func bindJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		msg := "invalid json body"
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			msg = "request body too large"
		} else if errors.Is(err, io.EOF) {
			msg = "empty body"
		}
		httpmiddleware.WriteError(w, r, http.StatusBadRequest, msg)
		return false
	}
	return true
}

func respond(w http.ResponseWriter, r *http.Request, res any, err error) {
	if err != nil {
		writeLookupError(w, r, err)
		return
	}
	httpmiddleware.WriteJSON(w, http.StatusOK, res)
}

// writeLookupError 输入问题 400，配额 429，上游问题一律 502。
func writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	var qe *seostats.QuotaError
	switch {
	case errors.Is(err, seostats.ErrInvalidTarget),
		errors.Is(err, seostats.ErrBatchTooLarge),
		errors.Is(err, seostats.ErrNoColumns),
		errors.Is(err, mozscape.ErrUnknownColumn),
		errors.Is(err, mozscape.ErrEmptyBatch),
		errors.Is(err, mozscape.ErrNoTarget):
		httpmiddleware.WriteError(w, r, http.StatusBadRequest, err.Error())
	case errors.As(err, &qe):
		if secs := qe.RetryAfterSeconds(); secs > 0 {
			w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
		}
		httpmiddleware.WriteError(w, r, http.StatusTooManyRequests, "upstream quota exceeded")
	case errors.Is(err, mozscape.ErrDecoding):
		slog.Warn("mozscape response not decodable", "err", err)
		httpmiddleware.WriteError(w, r, http.StatusBadGateway, "upstream response not decodable")
	default:
		slog.Error("mozscape request failed", "err", err)
		httpmiddleware.WriteError(w, r, http.StatusBadGateway, "upstream request failed")
	}
}
