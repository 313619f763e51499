package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/EPecherkin/catty-bills/apperr"
	"github.com/EPecherkin/catty-bills/db"
	"github.com/gin-gonic/gin"
)

const DATE_LAYOUT = "2006-01-02"

type pagination struct {
	Total   int64 `json:"total"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	HasMore bool  `json:"has_more"`
}

func newPagination(page db.Page, total int64) pagination {
	page = page.Normalize()
	return pagination{Total: total, Limit: page.Limit, Offset: page.Offset, HasMore: int64(page.Offset+page.Limit) < total}
}

func idParam(c *gin.Context, name string) (uint, error) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.New(apperr.InvalidPayload, "%s must be a positive integer, got %q", name, raw)
	}
	return uint(id), nil
}

func int64Param(c *gin.Context, name string) (int64, error) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperr.New(apperr.InvalidPayload, "%s must be an integer, got %q", name, raw)
	}
	return id, nil
}

func pageQuery(c *gin.Context) (db.Page, error) {
	var page db.Page
	for name, target := range map[string]*int{"offset": &page.Offset, "limit": &page.Limit} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return db.Page{}, apperr.New(apperr.InvalidPayload, "%s must be a non-negative integer, got %q", name, raw)
		}
		*target = n
	}
	return page.Normalize(), nil
}

// parseDate accepts RFC 3339 timestamps and plain dates.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, apperr.New(apperr.InvalidPayload, "bill_date is required")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(DATE_LAYOUT, raw)
	if err != nil {
		return time.Time{}, apperr.Wrap(apperr.InvalidPayload, err, "bill_date must be RFC 3339 or YYYY-MM-DD, got %q", raw)
	}
	return t, nil
}
