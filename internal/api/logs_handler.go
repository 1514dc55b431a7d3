package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
)

const (
	defaultRecentLogs = 100
	maxRecentLogs     = 1000
)

// recentLogsHandler serves the in-memory audit trail, newest last.
// ?since=RFC3339 filters by time; ?limit caps the count.
func recentLogsHandler(buf *logger.RingBuffer) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultRecentLogs
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > maxRecentLogs {
				respondError(c, fmt.Errorf("%w: limit must be between 1 and %d", errValidation, maxRecentLogs))
				return
			}
			limit = n
		}

		var entries []logger.Entry
		if raw := c.Query("since"); raw != "" {
			since, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				respondError(c, fmt.Errorf("%w: since must be an RFC3339 timestamp", errValidation))
				return
			}
			entries = buf.ReadSince(since)
			if len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}
		} else {
			entries = buf.ReadLast(limit)
		}
		if entries == nil {
			entries = []logger.Entry{}
		}

		c.JSON(http.StatusOK, gin.H{
			"entries":  entries,
			"count":    len(entries),
			"total":    buf.Total(),
			"capacity": buf.Capacity(),
		})
	}
}
