package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"voxmeter/internal/api/middleware"
	"voxmeter/internal/api/v1/dto"
	"voxmeter/internal/api/v1/services"
	"voxmeter/internal/app/ledger/export"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// UsageHandler reports ledger totals.
type UsageHandler struct {
	service services.UsageService
}

// NewUsageHandler creates a usage handler.
func NewUsageHandler(service services.UsageService) *UsageHandler {
	return &UsageHandler{service: service}
}

// Get handles GET /api/v1/usage?organizationId=&from=&to=&format=json|xlsx
//
// @Summary Usage totals
// @Description Sums the usage ledger of an organization over [from, to), as JSON or an xlsx workbook
// @Tags usage
// @Produce json
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param organizationId query string true "Organization"
// @Param from query string false "Window start, RFC 3339 or YYYY-MM-DD"
// @Param to query string false "Window end, RFC 3339 or YYYY-MM-DD"
// @Param format query string false "json or xlsx"
// @Success 200 {object} ledger.Summary
// @Failure 400 {object} errors.APIError "Validation error"
// @Router /usage [get]
func (h *UsageHandler) Get(c *gin.Context) {
	var q dto.UsageQuery
	if err := middleware.ValidateQuery(c, &q); err != nil {
		middleware.HandleError(c, err)
		return
	}
	from, to := q.Window()

	summary, err := h.service.Totals(c.Request.Context(), q.OrganizationID, from, to)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	if q.Format != dto.FormatXLSX {
		c.JSON(http.StatusOK, summary)
		return
	}
	filename := fmt.Sprintf("usage-%s-%s.xlsx", q.OrganizationID, to.Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Header("Content-Type", xlsxContentType)
	c.Status(http.StatusOK)
	if err := export.Write(c.Writer, summary); err != nil {
		_ = c.Error(err)
	}
}
