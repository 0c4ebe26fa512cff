package handlers

import (
	"net/http"
)

// HandleGetFees returns the statement's converted fee records.
func (h *StatementHandler) HandleGetFees(w http.ResponseWriter, r *http.Request) {
	report, ok := h.lookup(w, r)
	if !ok {
		return
	}
	sendWithETag(w, r, nonNilRecords(report.Fees))
}
