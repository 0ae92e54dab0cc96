package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/adapters/repository"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/auth"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/model"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/progress"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/pkg/logger"
)

func newTestGateway(t *testing.T) (*Gateway, *repository.SQLiteStore, *auth.TokenManager) {
	t.Helper()
	if err := logger.Init(); err != nil {
		t.Fatalf("init logger: %v", err)
	}
	store, err := repository.Open(filepath.Join(t.TempDir(), "telemetry.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	tokens := auth.NewTokenManager([]byte("test-secret"), "wisetwin")
	gateway := NewGateway(store, tokens, progress.NewProjector(logger.Get()), logger.Get())
	return gateway, store, tokens
}

func TestIngest(t *testing.T) {
	Convey("Given a gateway backed by a real store", t, func() {
		gateway, store, tokens := newTestGateway(t)
		ctx := context.Background()

		Convey("When a token-less envelope targets a personal container", func() {
			res, err := gateway.Ingest(ctx, validEnvelope())

			Convey("Then the subject is derived from the container name", func() {
				So(err, ShouldBeNil)
				So(res.Created, ShouldBeTrue)
				got, err := store.GetSession(ctx, "sess-1")
				So(err, ShouldBeNil)
				So(got.SubjectID, ShouldEqual, "user-1")
			})
		})

		Convey("When a token-less envelope targets an organization container", func() {
			env := validEnvelope()
			env.ContainerID = "org-acme"
			_, err := gateway.Ingest(ctx, env)

			Convey("Then it is rejected for missing attribution", func() {
				So(errors.Is(err, auth.ErrMissingToken), ShouldBeTrue)
			})
		})

		Convey("When the container matches no naming convention", func() {
			env := validEnvelope()
			env.ContainerID = "mystery-box"
			_, err := gateway.Ingest(ctx, env)

			Convey("Then it is rejected as unknown", func() {
				So(errors.Is(err, ErrUnknownContainer), ShouldBeTrue)
			})
		})

		Convey("When a tokened envelope targets its own tenant", func() {
			token, err := tokens.Sign(auth.Identity{SubjectID: "user-9", TenantID: "acme"}, time.Hour)
			So(err, ShouldBeNil)

			env := validEnvelope()
			env.ContainerID = "org-acme-production"
			env.AuthToken = token
			res, err := gateway.Ingest(ctx, env)

			Convey("Then the token's subject owns the session", func() {
				So(err, ShouldBeNil)
				So(res.Created, ShouldBeTrue)
				got, err := store.GetSession(ctx, "sess-1")
				So(err, ShouldBeNil)
				So(got.SubjectID, ShouldEqual, "user-9")
			})
		})

		Convey("When a tokened envelope targets another tenant", func() {
			token, err := tokens.Sign(auth.Identity{SubjectID: "user-9", TenantID: "acme"}, time.Hour)
			So(err, ShouldBeNil)

			env := validEnvelope()
			env.ContainerID = "org-globex"
			env.AuthToken = token
			_, err = gateway.Ingest(ctx, env)

			Convey("Then it is rejected for tenant mismatch", func() {
				So(errors.Is(err, auth.ErrTenantMismatch), ShouldBeTrue)
			})
		})

		Convey("When the token is garbage", func() {
			env := validEnvelope()
			env.ContainerID = "org-acme"
			env.AuthToken = "not-a-jwt"
			_, err := gateway.Ingest(ctx, env)

			Convey("Then it is rejected as invalid", func() {
				So(errors.Is(err, auth.ErrInvalidToken), ShouldBeTrue)
			})
		})

		Convey("When the same session progresses to completion", func() {
			_, err := gateway.Ingest(ctx, validEnvelope())
			So(err, ShouldBeNil)

			done := validEnvelope()
			done.CompletionStatus = "completed"
			done.EndTime = done.StartTime.Add(10 * time.Minute)
			done.TotalDuration = 600
			res, err := gateway.Ingest(ctx, done)

			Convey("Then one record holds the final state", func() {
				So(err, ShouldBeNil)
				So(res.Created, ShouldBeFalse)
				So(res.Status, ShouldEqual, model.StatusCompleted)

				got, err := store.GetSession(ctx, "sess-1")
				So(err, ShouldBeNil)
				So(got.CompletionStatus, ShouldEqual, model.StatusCompleted)
				So(got.TotalDuration, ShouldEqual, 600)
			})

			Convey("And progress reaches 100 in the same operation", func() {
				So(err, ShouldBeNil)
				prog, err := store.GetProgress(ctx, "user-1", model.BuildIdentity{
					Name: "safety-101", Type: "wisetrainer", ContainerID: "personal-user-1",
				})
				So(err, ShouldBeNil)
				So(prog.Progress, ShouldEqual, progress.CompletedProgress)
				So(prog.CompletedAt.Equal(done.EndTime), ShouldBeTrue)
			})
		})

		Convey("When an envelope fails validation", func() {
			env := validEnvelope()
			env.SessionID = ""
			_, err := gateway.Ingest(ctx, env)

			Convey("Then nothing is persisted", func() {
				var verr *ValidationError
				So(errors.As(err, &verr), ShouldBeTrue)
				sessions, _, totalsErr := store.Totals(ctx)
				So(totalsErr, ShouldBeNil)
				So(sessions, ShouldEqual, 0)
			})
		})

		Convey("When a question arrives with an inconsistent first-attempt flag", func() {
			env := validEnvelope()
			env.Interactions[0].Question.UserAnswers = [][]int{{1}, {0}}
			env.Interactions[0].Question.FirstAttemptCorrect = true
			_, err := gateway.Ingest(ctx, env)

			Convey("Then the flag is recomputed from the raw answers", func() {
				So(err, ShouldBeNil)
				got, err := store.GetSession(ctx, "sess-1")
				So(err, ShouldBeNil)
				So(got.Interactions[0].Question.FirstAttemptCorrect, ShouldBeFalse)
			})
		})

		Convey("When the client omits the summary", func() {
			env := validEnvelope()
			env.Summary = nil
			_, err := gateway.Ingest(ctx, env)

			Convey("Then counters are derived from the interactions", func() {
				So(err, ShouldBeNil)
				got, err := store.GetSession(ctx, "sess-1")
				So(err, ShouldBeNil)
				So(got.Summary.TotalInteractions, ShouldEqual, 1)
			})
		})
	})
}
