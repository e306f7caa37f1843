package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/application/export"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/debt"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/interfaces/http/dto"
)

// DebtExporter builds debt export files
type DebtExporter interface {
	Export(ctx context.Context, format string, filter debt.Filter) (*export.File, error)
	Upload(ctx context.Context, file *export.File) error
	CanUpload() bool
}

// ExportHandler serves debt exports
type ExportHandler struct {
	BaseHandler
	exporter DebtExporter
}

// NewExportHandler creates a new ExportHandler
func NewExportHandler(exporter DebtExporter) *ExportHandler {
	return &ExportHandler{exporter: exporter}
}

// ExportDebtsQuery are the query parameters of GET /api/v1/exports/debts
type ExportDebtsQuery struct {
	Format    string `form:"format"`
	Status    string `form:"status"`
	CompanyID string `form:"company_id"`
	UserID    string `form:"user_id"`
	Limit     int    `form:"limit"`
	Upload    string `form:"upload"`
}

// ExportDebts godoc
// @Summary      Export debts
// @Description  Streams the debts as csv, xlsx or json. With upload=true the file is stored and a download link is returned instead.
// @Tags         exports
// @Produce      text/csv
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Produce      json
// @Param        format query string false "File format" Enums(csv, xlsx, json) default(csv)
// @Param        status query string false "Debt status"
// @Param        company_id query string false "Company ID" format(uuid)
// @Param        user_id query string false "Debtor user ID" format(uuid)
// @Param        limit query int false "Maximum rows"
// @Param        upload query bool false "Store the file and return a download link"
// @Success      200 {file} file "The export, or dto.Response{data=export.File} when upload=true"
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /api/v1/exports/debts [get]
func (h *ExportHandler) ExportDebts(c *gin.Context) {
	var q ExportDebtsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, dto.ErrCodeBadRequest, "Invalid query parameters")
		return
	}

	filter := debt.Filter{Status: debt.Status(q.Status), Limit: q.Limit}
	if q.CompanyID != "" {
		id, err := uuid.Parse(q.CompanyID)
		if err != nil {
			h.BadRequest(c, dto.ErrCodeInvalidInput, "company_id must be a UUID")
			return
		}
		filter.CompanyID = &id
	}
	if q.UserID != "" {
		id, err := uuid.Parse(q.UserID)
		if err != nil {
			h.BadRequest(c, dto.ErrCodeInvalidInput, "user_id must be a UUID")
			return
		}
		filter.UserID = &id
	}

	upload := false
	if q.Upload != "" {
		v, err := strconv.ParseBool(q.Upload)
		if err != nil {
			h.BadRequest(c, dto.ErrCodeInvalidInput, "upload must be a boolean")
			return
		}
		upload = v
	}

	file, err := h.exporter.Export(c.Request.Context(), q.Format, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if upload {
		if err := h.exporter.Upload(c.Request.Context(), file); err != nil {
			h.HandleError(c, err)
			return
		}
		h.Success(c, file)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+file.Name+`"`)
	c.Header("X-Export-Rows", strconv.Itoa(file.Rows))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
