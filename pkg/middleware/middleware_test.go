package middleware

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/logging"
)

func newServer(handler echo.HandlerFunc) *echo.Echo {
	logger := logging.Discard()
	e := echo.New()
	e.HTTPErrorHandler = Error(logger)
	e.Use(Context())
	e.Use(Logger(logger))
	e.GET("/test", handler)
	return e
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestContext(t *testing.T) {
	var requestID, caller string
	e := newServer(func(c echo.Context) error {
		requestID = context.GetRequestID(c.Request().Context())
		caller = context.GetCaller(c.Request().Context())
		return c.NoContent(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-42")
	req.Header.Set(HeaderCaller, "scheduler")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "req-42", requestID)
	assert.Equal(t, "scheduler", caller)
	assert.Equal(t, "req-42", rec.Header().Get(echo.HeaderXRequestID))

	t.Run("generates a request id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.NotEmpty(t, requestID)
		assert.NotEqual(t, "req-42", requestID)
		assert.Equal(t, requestID, rec.Header().Get(echo.HeaderXRequestID))
	})
}

func TestError(t *testing.T) {
	t.Run("pipeline error", func(t *testing.T) {
		e := newServer(func(c echo.Context) error {
			return errors.New(errors.KindNotFound, "unknown dataset").AddDataset("sipp")
		})
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(echo.HeaderXRequestID, "req-1")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		body := decode(t, rec)
		assert.Contains(t, body.Message, "unknown dataset")
		assert.Equal(t, "req-1", body.RequestID)
		assert.Equal(t, "not_found", body.Meta["kind"])
		assert.Equal(t, "sipp", body.Meta["dataset"])
	})

	t.Run("data defect", func(t *testing.T) {
		e := newServer(func(c echo.Context) error {
			return errors.New(errors.KindReferentialDefect, "orphan persons")
		})
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("echo error", func(t *testing.T) {
		e := newServer(func(c echo.Context) error {
			return echo.NewHTTPError(http.StatusBadRequest, "year must be an integer")
		})
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "year must be an integer", decode(t, rec).Message)
	})

	t.Run("unknown error", func(t *testing.T) {
		e := newServer(func(c echo.Context) error {
			return stderrors.New("disk on fire")
		})
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Internal Server Error", decode(t, rec).Message)
	})
}
