package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dokzlo13/nvxd/internal/ledger"
)

const (
	defaultLedgerLimit  = 100
	maxLedgerLimit      = 1000
	defaultLedgerWindow = 24 * time.Hour
)

// handleLedger lists ledger entries, newest first. With ?type= it filters by
// event type, otherwise it returns the ?since=..&until= window (RFC 3339,
// last 24 hours by default).
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := defaultLedgerLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLedgerLimit)
	}

	var (
		entries []*ledger.Entry
		err     error
	)
	if v := q.Get("type"); v != "" {
		t, ok := ledger.ParseEventType(v)
		if !ok {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "unknown event type "+strconv.Quote(v))
			return
		}
		entries, err = s.history.GetByType(t, limit)
	} else {
		until := time.Now()
		since := until.Add(-defaultLedgerWindow)
		if since, err = parseTime(q.Get("since"), since); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "since: "+err.Error())
			return
		}
		if until, err = parseTime(q.Get("until"), until); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "until: "+err.Error())
			return
		}
		entries, err = s.history.GetByTimeRange(since, until, limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	if entries == nil {
		entries = []*ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleLastApplied returns the latest successful control of ?property=.
func (s *Server) handleLastApplied(w http.ResponseWriter, r *http.Request) {
	property := r.URL.Query().Get("property")
	if property == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "property is required")
		return
	}
	entry, err := s.history.LastApplied(s.engine.DeviceID(), property)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "no applied control for "+property)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func parseTime(v string, def time.Time) (time.Time, error) {
	if v == "" {
		return def, nil
	}
	return time.Parse(time.RFC3339, v)
}
