package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/auth"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/ingest"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/model"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/types"
)

// stubDeps implements Dependencies with canned behavior per test.
type stubDeps struct {
	ingestFn        func(ctx context.Context, env ingest.Envelope) (ingest.Result, error)
	resolveTenantFn func(ctx context.Context, token string) (string, error)
	listFn          func(ctx context.Context, f types.SessionFilter, language string) (*SessionPage, error)
	buildStatsFn    func(ctx context.Context, f types.SessionFilter, language string) (*BuildStatsResult, error)
	exportFn        func(ctx context.Context, f types.SessionFilter, w io.Writer) error
}

func (s *stubDeps) Ingest(ctx context.Context, env ingest.Envelope) (ingest.Result, error) {
	return s.ingestFn(ctx, env)
}

func (s *stubDeps) ResolveTenant(ctx context.Context, token string) (string, error) {
	if s.resolveTenantFn == nil {
		return "", nil
	}
	return s.resolveTenantFn(ctx, token)
}

func (s *stubDeps) ListSessions(ctx context.Context, f types.SessionFilter, language string) (*SessionPage, error) {
	return s.listFn(ctx, f, language)
}

func (s *stubDeps) BuildStats(ctx context.Context, f types.SessionFilter, language string) (*BuildStatsResult, error) {
	return s.buildStatsFn(ctx, f, language)
}

func (s *stubDeps) Export(ctx context.Context, f types.SessionFilter, w io.Writer) error {
	return s.exportFn(ctx, f, w)
}

type stubStats struct{}

func (stubStats) GetStats() map[string]interface{} {
	return map[string]interface{}{"started": true}
}

func newTestServer(deps *stubDeps) *httptest.Server {
	srv := NewServer(deps, stubStats{})
	mux := http.NewServeMux()
	srv.Register(context.Background(), mux)
	return httptest.NewServer(mux)
}

func TestHandlePostTelemetry(t *testing.T) {
	Convey("Given an API server", t, func() {
		deps := &stubDeps{
			ingestFn: func(_ context.Context, env ingest.Envelope) (ingest.Result, error) {
				return ingest.Result{SessionID: env.SessionID, Created: true, Status: model.StatusInProgress}, nil
			},
		}
		ts := newTestServer(deps)
		defer ts.Close()

		Convey("When a valid envelope is posted", func() {
			resp, err := http.Post(ts.URL+"/api/telemetry", "application/json",
				strings.NewReader(`{"sessionId":"s1","buildName":"b","buildType":"t","containerId":"personal-u"}`))
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then it is acknowledged as created", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusCreated)
				var body ingestResponse
				So(json.NewDecoder(resp.Body).Decode(&body), ShouldBeNil)
				So(body.Success, ShouldBeTrue)
				So(body.SessionID, ShouldEqual, "s1")
			})
		})

		Convey("When the bearer token rides in the Authorization header", func() {
			var got string
			deps.ingestFn = func(_ context.Context, env ingest.Envelope) (ingest.Result, error) {
				got = env.AuthToken
				return ingest.Result{SessionID: env.SessionID}, nil
			}
			req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/telemetry",
				strings.NewReader(`{"sessionId":"s1"}`))
			req.Header.Set("Authorization", "Bearer tok-123")
			resp, err := http.DefaultClient.Do(req)
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then the gateway sees the token", func() {
				So(got, ShouldEqual, "tok-123")
			})
		})

		Convey("When the body is not JSON", func() {
			resp, err := http.Post(ts.URL+"/api/telemetry", "application/json",
				strings.NewReader(`{{{`))
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then it fails with 400", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When ingestion fails validation", func() {
			deps.ingestFn = func(context.Context, ingest.Envelope) (ingest.Result, error) {
				return ingest.Result{}, &ingest.ValidationError{Fields: map[string]string{"sessionId": "required"}}
			}
			resp, err := http.Post(ts.URL+"/api/telemetry", "application/json", strings.NewReader(`{}`))
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then the response carries per-field details", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
				var body errorResponse
				So(json.NewDecoder(resp.Body).Decode(&body), ShouldBeNil)
				So(body.Success, ShouldBeFalse)
				So(body.Details["sessionId"], ShouldEqual, "required")
			})
		})

		Convey("When ingestion fails authentication", func() {
			deps.ingestFn = func(context.Context, ingest.Envelope) (ingest.Result, error) {
				return ingest.Result{}, auth.ErrExpiredToken
			}
			resp, err := http.Post(ts.URL+"/api/telemetry", "application/json", strings.NewReader(`{}`))
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then it maps to 401", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusUnauthorized)
			})
		})

		Convey("When the container is unknown", func() {
			deps.ingestFn = func(context.Context, ingest.Envelope) (ingest.Result, error) {
				return ingest.Result{}, ingest.ErrUnknownContainer
			}
			resp, err := http.Post(ts.URL+"/api/telemetry", "application/json", strings.NewReader(`{}`))
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then it maps to 404", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When the store fails", func() {
			deps.ingestFn = func(context.Context, ingest.Envelope) (ingest.Result, error) {
				return ingest.Result{}, errors.New("disk exploded: /var/lib/secret.db")
			}
			resp, err := http.Post(ts.URL+"/api/telemetry", "application/json", strings.NewReader(`{}`))
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then it maps to 500 without leaking internals", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusInternalServerError)
				var body errorResponse
				So(json.NewDecoder(resp.Body).Decode(&body), ShouldBeNil)
				So(body.Error, ShouldEqual, "internal error")
				So(body.Error, ShouldNotContainSubstring, "secret")
			})
		})

		Convey("When the method is GET", func() {
			resp, err := http.Get(ts.URL + "/api/telemetry")
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then the route is not found", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestHandleListSessions(t *testing.T) {
	Convey("Given an API server", t, func() {
		var gotFilter types.SessionFilter
		var gotLanguage string
		deps := &stubDeps{
			listFn: func(_ context.Context, f types.SessionFilter, language string) (*SessionPage, error) {
				gotFilter = f
				gotLanguage = language
				return &SessionPage{
					Pagination: types.Pagination{Page: 1, Limit: 20, Total: 0},
				}, nil
			},
		}
		ts := newTestServer(deps)
		defer ts.Close()

		Convey("When sessions are listed with filters", func() {
			resp, err := http.Get(ts.URL + "/api/sessions?subjectId=user-1&completionStatus=completed&page=2&limit=10&language=en-GB&from=2026-03-01T00:00:00Z")
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then the filter reaches the service intact", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(gotFilter.SubjectID, ShouldEqual, "user-1")
				So(gotFilter.CompletionStatus, ShouldEqual, model.StatusCompleted)
				So(gotFilter.Page, ShouldEqual, 2)
				So(gotFilter.Limit, ShouldEqual, 10)
				So(gotFilter.From.IsZero(), ShouldBeFalse)
				So(gotLanguage, ShouldEqual, "en-GB")
			})
		})

		Convey("When the page parameter is malformed", func() {
			resp, err := http.Get(ts.URL + "/api/sessions?page=zero")
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then it fails with 400", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When a bearer token carries a tenant", func() {
			var gotToken string
			deps.resolveTenantFn = func(_ context.Context, token string) (string, error) {
				gotToken = token
				return "acme", nil
			}
			req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/sessions", http.NoBody)
			req.Header.Set("Authorization", "Bearer tok-acme")
			resp, err := http.DefaultClient.Do(req)
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then the query is scoped to that tenant", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(gotToken, ShouldEqual, "tok-acme")
				So(gotFilter.TenantID, ShouldEqual, "acme")
			})
		})

		Convey("When the bearer token is rejected", func() {
			deps.resolveTenantFn = func(context.Context, string) (string, error) {
				return "", auth.ErrInvalidToken
			}
			req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/sessions", http.NoBody)
			req.Header.Set("Authorization", "Bearer bad")
			resp, err := http.DefaultClient.Do(req)
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then it fails with 401", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusUnauthorized)
			})
		})

		Convey("When the completion status is unknown", func() {
			resp, err := http.Get(ts.URL + "/api/sessions?completionStatus=finished")
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then it fails with 400", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestHandleBuildStats(t *testing.T) {
	Convey("Given an API server", t, func() {
		deps := &stubDeps{
			buildStatsFn: func(_ context.Context, f types.SessionFilter, _ string) (*BuildStatsResult, error) {
				return &BuildStatsResult{Sessions: 3}, nil
			},
		}
		ts := newTestServer(deps)
		defer ts.Close()

		Convey("When build identity is provided", func() {
			resp, err := http.Get(ts.URL + "/api/builds/stats?buildName=safety-101&buildType=wisetrainer")
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then stats come back", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				var body BuildStatsResult
				So(json.NewDecoder(resp.Body).Decode(&body), ShouldBeNil)
				So(body.Sessions, ShouldEqual, 3)
			})
		})

		Convey("When build identity is missing", func() {
			resp, err := http.Get(ts.URL + "/api/builds/stats")
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then it fails with per-field details", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
				var body errorResponse
				So(json.NewDecoder(resp.Body).Decode(&body), ShouldBeNil)
				So(body.Details, ShouldContainKey, "buildName")
			})
		})
	})
}

func TestHandleExport(t *testing.T) {
	Convey("Given an API server", t, func() {
		deps := &stubDeps{
			exportFn: func(_ context.Context, _ types.SessionFilter, w io.Writer) error {
				_, err := w.Write(append([]byte{0xEF, 0xBB, 0xBF}, []byte("sessionId\n")...))
				return err
			},
		}
		ts := newTestServer(deps)
		defer ts.Close()

		Convey("When the export is requested", func() {
			resp, err := http.Get(ts.URL + "/api/sessions/export")
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then it downloads as CSV", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(resp.Header.Get("Content-Type"), ShouldStartWith, "text/csv")
				So(resp.Header.Get("Content-Disposition"), ShouldContainSubstring, "sessions.csv")
				body, err := io.ReadAll(resp.Body)
				So(err, ShouldBeNil)
				So(bytes.HasPrefix(body, []byte{0xEF, 0xBB, 0xBF}), ShouldBeTrue)
			})
		})
	})
}

func TestHandleStats(t *testing.T) {
	Convey("Given an API server", t, func() {
		deps := &stubDeps{}
		ts := newTestServer(deps)
		defer ts.Close()

		Convey("When stats are requested", func() {
			resp, err := http.Get(ts.URL + "/stats")
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then the service snapshot is returned", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				var body map[string]interface{}
				So(json.NewDecoder(resp.Body).Decode(&body), ShouldBeNil)
				So(body["started"], ShouldEqual, true)
			})
		})
	})
}
