package httpapi

import (
	"net/http"
	"time"

	"license-commerce/internal/reporting"

	"github.com/gin-gonic/gin"
)

func (h Handlers) OverlimitReport(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	rows, err := h.Reports.OverlimitWallets(c.Request.Context(), who.tenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallets": rows})
}

// SpendReport aggregates the tenant journal over [from, to), both RFC 3339.
// Without a range it covers the last 30 days.
func (h Handlers) SpendReport(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	to := h.now().UTC()
	from := to.AddDate(0, 0, -30)
	for name, dst := range map[string]*time.Time{"from": &from, "to": &to} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": name + " must be RFC 3339"})
			return
		}
		*dst = t.UTC()
	}
	out, err := h.Reports.SpendSummary(c.Request.Context(), reporting.SpendSummaryRequest{
		TenantID: who.tenantID,
		UserID:   c.Query("user_id"),
		Range:    reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
