package api

import (
	"net/http"
	"strconv"

	"github.com/gramseva/complaint-portal/internal/shared/errors"
)

// MonthlyReport serves the report for ?month=&year=, defaulting to the
// current month
func (h *Handler) MonthlyReport(w http.ResponseWriter, r *http.Request) {
	now := h.svc.Now()
	month, year := int(now.Month()), now.Year()

	q := r.URL.Query()
	if v := q.Get("month"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, errors.BadRequest("invalid month"))
			return
		}
		month = n
	}
	if v := q.Get("year"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, errors.BadRequest("invalid year"))
			return
		}
		year = n
	}

	filter, err := parseComplaintFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rep, err := h.reports.MonthlyReport(r.Context(), month, year, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	overview, err := h.reports.DashboardOverview(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}
