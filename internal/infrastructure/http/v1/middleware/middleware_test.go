package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
)

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(), Trace(), ErrorHandler())
	return r
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRecoveryRendersInternalError(t *testing.T) {
	r := newEngine()
	r.GET("/boom", func(*gin.Context) { panic("nil balance row") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(HeaderRequestID, "req-7")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, apperror.CodeInternal, body["code"])
	assert.Equal(t, "req-7", body["details"].(map[string]any)["request_id"])
	assert.NotContains(t, w.Body.String(), "nil balance row")
}

func TestErrorHandlerUsesAppErrorStatus(t *testing.T) {
	r := newEngine()
	r.POST("/movements", func(c *gin.Context) {
		_ = c.Error(apperror.NewInsufficientStock("p", "l", "1.0000", "2.0000"))
	})
	r.GET("/plain", func(c *gin.Context) {
		_ = c.Error(errors.New("driver: bad connection"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/movements", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, apperror.CodeInsufficientStock, decode(t, w)["code"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plain", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "bad connection")
}

func TestTracePrefersTraceparent(t *testing.T) {
	r := newEngine()
	var seen *appctx.TraceContext
	r.GET("/t", func(c *gin.Context) {
		seen = appctx.GetTrace(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/t", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	req.Header.Set(HeaderTraceID, "ignored")
	r.ServeHTTP(w, req)

	require.NotNil(t, seen)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", seen.TraceID)
	assert.NotEmpty(t, seen.RequestID)
	assert.Equal(t, seen.TraceID, w.Header().Get(HeaderTraceID))
}

func TestTraceGeneratesIDs(t *testing.T) {
	r := newEngine()
	r.GET("/t", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/t", nil))

	assert.NotEmpty(t, w.Header().Get(HeaderTraceID))
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}

func TestSetupValidatorEnumTags(t *testing.T) {
	require.NoError(t, SetupValidator())

	type movementBody struct {
		MovementType  string `json:"movementType" binding:"required,movementtype"`
		ReferenceType string `json:"referenceType" binding:"required,referencetype"`
	}

	assert.NoError(t, binding.Validator.ValidateStruct(&movementBody{MovementType: "out", ReferenceType: "sale"}))

	err := binding.Validator.ValidateStruct(&movementBody{MovementType: "sideways", ReferenceType: "reversal"})
	require.Error(t, err)
	assert.Equal(t, map[string]string{
		"movementType":  "movementtype",
		"referenceType": "referencetype",
	}, ValidationDetails(err))
}
