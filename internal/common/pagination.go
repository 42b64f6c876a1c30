package common

import (
	"net/http"
	"strconv"
)

// ParsePage reads ?page= and ?limit=. Missing or invalid values fall back to
// page 1 and defaultLimit; limit is capped at maxLimit when maxLimit is positive.
func ParsePage(r *http.Request, defaultLimit, maxLimit int) (page, limit int) {
	q := r.URL.Query()
	page, limit = 1, defaultLimit
	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 {
		limit = l
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}
