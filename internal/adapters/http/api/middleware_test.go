package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsMiddleware(t *testing.T) {
	Convey("Given a handler wrapped by the metrics middleware", t, func() {
		Convey("When the handler answers with an explicit status", func() {
			wrapped := MetricsMiddleware(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			}, "sessions")

			rec := httptest.NewRecorder()
			wrapped(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))

			Convey("Then the status passes through untouched", func() {
				So(rec.Code, ShouldEqual, http.StatusUnauthorized)
			})
		})

		Convey("When the handler never calls WriteHeader", func() {
			wrapped := MetricsMiddleware(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("ok"))
			}, "health")

			rec := httptest.NewRecorder()
			wrapped(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			Convey("Then the implicit 200 is preserved", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Body.String(), ShouldEqual, "ok")
			})
		})
	})
}

func TestErrorOutcomeMapping(t *testing.T) {
	Convey("Given the status-to-outcome mapping", t, func() {
		Convey("Then rejection outcomes carry their own labels", func() {
			So(getErrorType(http.StatusBadRequest), ShouldEqual, "validation")
			So(getErrorType(http.StatusUnauthorized), ShouldEqual, "auth")
			So(getErrorType(http.StatusNotFound), ShouldEqual, "not_found")
			So(getErrorType(http.StatusTooManyRequests), ShouldEqual, "rate_limit")
			So(getErrorType(http.StatusConflict), ShouldEqual, "client_error")
			So(getErrorType(http.StatusInternalServerError), ShouldEqual, "server_error")
			So(getErrorType(http.StatusBadGateway), ShouldEqual, "server_error")
			So(getErrorType(http.StatusOK), ShouldEqual, "unknown")
		})

		Convey("Then severity tracks the failing side", func() {
			So(getErrorSeverity(http.StatusInternalServerError), ShouldEqual, "high")
			So(getErrorSeverity(http.StatusBadRequest), ShouldEqual, "medium")
			So(getErrorSeverity(http.StatusUnauthorized), ShouldEqual, "medium")
			So(getErrorSeverity(http.StatusOK), ShouldEqual, "low")
		})
	})
}
