package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	emailapp "github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/application/email"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/application/export"
	paymentapp "github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/application/payment"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/debt"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/payment"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/shared"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/interfaces/http/dto"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type MockWebhookProcessor struct {
	mock.Mock
}

func (m *MockWebhookProcessor) Process(ctx context.Context, n payment.Notification, raw []byte) (*paymentapp.WebhookResult, error) {
	args := m.Called(ctx, n, raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentapp.WebhookResult), args.Error(1)
}

type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) Send(ctx context.Context, req emailapp.SendRequest) (*emailapp.SendResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*emailapp.SendResult), args.Error(1)
}

type MockDebtExporter struct {
	mock.Mock
}

func (m *MockDebtExporter) Export(ctx context.Context, format string, filter debt.Filter) (*export.File, error) {
	args := m.Called(ctx, format, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*export.File), args.Error(1)
}

func (m *MockDebtExporter) Upload(ctx context.Context, file *export.File) error {
	return m.Called(ctx, file).Error(0)
}

func (m *MockDebtExporter) CanUpload() bool {
	return m.Called().Bool(0)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func serve(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func newWebhookRouter(p WebhookProcessor) *gin.Engine {
	h := NewPaymentWebhookHandler(p)
	r := gin.New()
	r.Use(middleware.RequestID())
	r.POST("/webhook", h.Handle)
	r.GET("/webhook", h.MethodNotAllowed)
	return r
}

func TestPaymentWebhookHandler(t *testing.T) {
	t.Run("processes notification", func(t *testing.T) {
		p := new(MockWebhookProcessor)
		body := `{"type":"payment","action":"payment.updated","data":{"id":123}}`
		p.On("Process", mock.Anything, payment.Notification{
			Type: "payment", Action: "payment.updated", Data: payment.NotificationData{ID: "123"},
		}, []byte(body)).Return(&paymentapp.WebhookResult{Status: paymentapp.StatusProcessed, PaymentStatus: "approved"}, nil)

		w := serve(newWebhookRouter(p), http.MethodPost, "/webhook", body)

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decode(t, w)
		assert.True(t, resp.Success)
		assert.Equal(t, "processed", resp.Data.(map[string]any)["status"])
		p.AssertExpectations(t)
	})

	t.Run("invalid json is 400", func(t *testing.T) {
		p := new(MockWebhookProcessor)
		w := serve(newWebhookRouter(p), http.MethodPost, "/webhook", `{"type":`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidJSON, decode(t, w).Error.Code)
		p.AssertNotCalled(t, "Process", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("validation failure is 400", func(t *testing.T) {
		p := new(MockWebhookProcessor)
		p.On("Process", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, shared.ErrInvalidInput.WithMessage("data.id is required"))

		w := serve(newWebhookRouter(p), http.MethodPost, "/webhook", `{"type":"payment"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decode(t, w)
		assert.Equal(t, dto.ErrCodeInvalidInput, resp.Error.Code)
		assert.Equal(t, "data.id is required", resp.Error.Message)
	})

	t.Run("processing failure is 500", func(t *testing.T) {
		p := new(MockWebhookProcessor)
		p.On("Process", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

		w := serve(newWebhookRouter(p), http.MethodPost, "/webhook", `{"type":"payment","data":{"id":"1"}}`)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		resp := decode(t, w)
		assert.Equal(t, dto.ErrCodeInternal, resp.Error.Code)
		assert.NotContains(t, w.Body.String(), "db down")
	})

	t.Run("oversized payload is 413", func(t *testing.T) {
		p := new(MockWebhookProcessor)
		big := `{"type":"` + strings.Repeat("x", maxWebhookPayloadSize) + `"}`
		w := serve(newWebhookRouter(p), http.MethodPost, "/webhook", big)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("other methods are 405", func(t *testing.T) {
		w := serve(newWebhookRouter(new(MockWebhookProcessor)), http.MethodGet, "/webhook", "")

		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		assert.Equal(t, "POST, OPTIONS", w.Header().Get("Allow"))
		assert.Equal(t, dto.ErrCodeMethodNotAllowed, decode(t, w).Error.Code)
	})
}

func newEmailRouter(s EmailSender) *gin.Engine {
	h := NewEmailHandler(s)
	r := gin.New()
	r.POST("/send-email", h.Send)
	return r
}

func TestEmailHandler(t *testing.T) {
	t.Run("sends email", func(t *testing.T) {
		s := new(MockEmailSender)
		s.On("Send", mock.Anything, emailapp.SendRequest{
			To: "ana@mail.cl", Template: "welcome", Data: map[string]any{"name": "Ana"},
		}).Return(&emailapp.SendResult{MessageID: "m-1", Provider: "log", To: "ana@mail.cl"}, nil)

		w := serve(newEmailRouter(s), http.MethodPost, "/send-email",
			`{"to":"ana@mail.cl","template":"welcome","data":{"name":"Ana"}}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "m-1", decode(t, w).Data.(map[string]any)["message_id"])
		s.AssertExpectations(t)
	})

	t.Run("validation errors carry field details", func(t *testing.T) {
		type req struct {
			To string `json:"to" validate:"required,email"`
		}
		v := validator.New()
		verr := v.Struct(req{To: "bad"})
		s := new(MockEmailSender)
		s.On("Send", mock.Anything, mock.Anything).
			Return(nil, shared.ErrInvalidInput.WithMessage("Request validation failed").Wrap(verr))

		w := serve(newEmailRouter(s), http.MethodPost, "/send-email", `{"to":"bad"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decode(t, w)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		require.Len(t, resp.Error.Details, 1)
		assert.Equal(t, "Invalid email format", resp.Error.Details[0].Message)
	})

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"template missing", shared.ErrNotFound.WithMessage("email template x not found"), http.StatusNotFound, dto.ErrCodeNotFound},
		{"delivery failed", shared.ErrUpstreamFailed.WithMessage("email delivery failed"), http.StatusInternalServerError, dto.ErrCodeUpstream},
		{"invalid input", shared.ErrInvalidInput.WithMessage("subject is too long"), http.StatusBadRequest, dto.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := new(MockEmailSender)
			s.On("Send", mock.Anything, mock.Anything).Return(nil, tt.err)

			w := serve(newEmailRouter(s), http.MethodPost, "/send-email", `{"to":"a@b.cl","template":"x"}`)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode(t, w).Error.Code)
		})
	}

	t.Run("invalid json", func(t *testing.T) {
		w := serve(newEmailRouter(new(MockEmailSender)), http.MethodPost, "/send-email", `nope`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func newExportRouter(e DebtExporter) *gin.Engine {
	h := NewExportHandler(e)
	r := gin.New()
	r.GET("/exports/debts", h.ExportDebts)
	return r
}

func TestExportHandler(t *testing.T) {
	companyID := "8d6f1c8e-5e8c-4c3e-9a53-1f2f4b7a9c10"

	t.Run("streams file", func(t *testing.T) {
		e := new(MockDebtExporter)
		e.On("Export", mock.Anything, "csv", mock.MatchedBy(func(f debt.Filter) bool {
			return f.Status == debt.StatusPending && f.CompanyID != nil && f.CompanyID.String() == companyID
		})).Return(&export.File{
			Name: "deudas.csv", ContentType: "text/csv; charset=utf-8", Rows: 1, Data: []byte("id\n1\n"),
		}, nil)

		w := serve(newExportRouter(e), http.MethodGet, "/exports/debts?format=csv&status=pending&company_id="+companyID, "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="deudas.csv"`, w.Header().Get("Content-Disposition"))
		assert.Equal(t, "1", w.Header().Get("X-Export-Rows"))
		assert.True(t, bytes.Equal([]byte("id\n1\n"), w.Body.Bytes()))
	})

	t.Run("upload returns link", func(t *testing.T) {
		e := new(MockDebtExporter)
		file := &export.File{Name: "deudas.xlsx", Format: export.FormatXLSX, Data: []byte("x")}
		e.On("Export", mock.Anything, "xlsx", debt.Filter{}).Return(file, nil)
		e.On("Upload", mock.Anything, file).Run(func(args mock.Arguments) {
			args.Get(1).(*export.File).URL = "https://storage.local/exports/deudas.xlsx"
		}).Return(nil)

		w := serve(newExportRouter(e), http.MethodGet, "/exports/debts?format=xlsx&upload=true", "")

		assert.Equal(t, http.StatusOK, w.Code)
		data := decode(t, w).Data.(map[string]any)
		assert.Equal(t, "https://storage.local/exports/deudas.xlsx", data["url"])
		assert.NotContains(t, data, "data")
	})

	t.Run("bad company id", func(t *testing.T) {
		w := serve(newExportRouter(new(MockDebtExporter)), http.MethodGet, "/exports/debts?company_id=nope", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("bad upload flag", func(t *testing.T) {
		w := serve(newExportRouter(new(MockDebtExporter)), http.MethodGet, "/exports/debts?upload=maybe", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown format", func(t *testing.T) {
		e := new(MockDebtExporter)
		e.On("Export", mock.Anything, "pdf", mock.Anything).Return(nil, shared.ErrInvalidInput.WithMessage(`unsupported export format "pdf"`))

		w := serve(newExportRouter(e), http.MethodGet, "/exports/debts?format=pdf", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("upload without storage is 503", func(t *testing.T) {
		e := new(MockDebtExporter)
		file := &export.File{Name: "deudas.csv"}
		e.On("Export", mock.Anything, "", debt.Filter{}).Return(file, nil)
		e.On("Upload", mock.Anything, file).Return(shared.ErrUnavailable.WithMessage("object storage is not configured"))

		w := serve(newExportRouter(e), http.MethodGet, "/exports/debts?upload=1", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestSystemHandler(t *testing.T) {
	newRouter := func(info SystemInfo, db Pinger) *gin.Engine {
		h := NewSystemHandler(info, db)
		r := gin.New()
		r.GET("/health", h.Health)
		r.GET("/ping", h.Ping)
		return r
	}
	info := SystemInfo{Name: "nexupay", Version: "test", Configured: true}

	t.Run("healthy", func(t *testing.T) {
		w := serve(newRouter(info, pingFunc(func(context.Context) error { return nil })), http.MethodGet, "/health", "")

		assert.Equal(t, http.StatusOK, w.Code)
		data := decode(t, w).Data.(map[string]any)
		assert.Equal(t, "healthy", data["status"])
		assert.Equal(t, "ok", data["database"])
	})

	t.Run("database down", func(t *testing.T) {
		w := serve(newRouter(info, pingFunc(func(context.Context) error { return errors.New("refused") })), http.MethodGet, "/health", "")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		resp := decode(t, w)
		assert.False(t, resp.Success)
		assert.Equal(t, "unreachable", resp.Data.(map[string]any)["database"])
	})

	t.Run("unconfigured is degraded", func(t *testing.T) {
		w := serve(newRouter(SystemInfo{Name: "nexupay"}, nil), http.MethodGet, "/health", "")

		assert.Equal(t, http.StatusOK, w.Code)
		data := decode(t, w).Data.(map[string]any)
		assert.Equal(t, "degraded", data["status"])
		assert.Equal(t, "not_configured", data["database"])
	})

	t.Run("ping", func(t *testing.T) {
		w := serve(newRouter(info, nil), http.MethodGet, "/ping", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "pong", decode(t, w).Data.(map[string]any)["message"])
	})
}
