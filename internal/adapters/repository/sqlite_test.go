package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/model"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/types"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "telemetry.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleSession(id string) model.SessionRecord {
	return model.SessionRecord{
		SessionID: id,
		SubjectID: "user-1",
		Build: model.BuildIdentity{
			Name:        "safety-101",
			Type:        "wisetrainer",
			Version:     "1.2.0",
			ContainerID: "org-acme",
		},
		StartTime:        time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		CompletionStatus: model.StatusInProgress,
		Interactions: []model.InteractionRecord{
			{
				InteractionID: "int-1",
				Type:          model.TypeQuestion,
				ObjectID:      "obj-1",
				Question: &model.QuestionInteraction{
					QuestionKey:    "q1",
					CorrectAnswers: []int{1},
					UserAnswers:    [][]int{{1}},
					FinalScore:     100,
				},
			},
		},
		Summary: model.SessionSummary{TotalInteractions: 1},
	}
}

func TestUpsertSession(t *testing.T) {
	Convey("Given an open store", t, func() {
		store := openTestStore(t)
		ctx := context.Background()

		Convey("When a new session is upserted", func() {
			res, err := store.UpsertSession(ctx, sampleSession("sess-1"))

			Convey("Then a row is created", func() {
				So(err, ShouldBeNil)
				So(res.Created, ShouldBeTrue)
				So(res.Session.SessionID, ShouldEqual, "sess-1")
				So(res.Session.CompletionStatus, ShouldEqual, model.StatusInProgress)
			})
		})

		Convey("When the same session id is upserted again", func() {
			_, err := store.UpsertSession(ctx, sampleSession("sess-1"))
			So(err, ShouldBeNil)

			update := sampleSession("sess-1")
			update.CompletionStatus = model.StatusCompleted
			update.EndTime = update.StartTime.Add(10 * time.Minute)
			update.TotalDuration = 600
			res, err := store.UpsertSession(ctx, update)

			Convey("Then the existing row is updated in place", func() {
				So(err, ShouldBeNil)
				So(res.Created, ShouldBeFalse)
				So(res.Session.CompletionStatus, ShouldEqual, model.StatusCompleted)
				So(res.Session.TotalDuration, ShouldEqual, 600)

				count, err := store.CountSessions(ctx, types.SessionFilter{})
				So(err, ShouldBeNil)
				So(count, ShouldEqual, 1)
			})
		})

		Convey("When an update tries to change identity fields", func() {
			_, err := store.UpsertSession(ctx, sampleSession("sess-1"))
			So(err, ShouldBeNil)

			update := sampleSession("sess-1")
			update.SubjectID = "intruder"
			update.Build.Name = "other-build"
			res, err := store.UpsertSession(ctx, update)

			Convey("Then the stored identity is unchanged", func() {
				So(err, ShouldBeNil)
				So(res.Session.SubjectID, ShouldEqual, "user-1")
				So(res.Session.Build.Name, ShouldEqual, "safety-101")
			})
		})

		Convey("When a stale IN_PROGRESS snapshot follows a terminal status", func() {
			done := sampleSession("sess-1")
			done.CompletionStatus = model.StatusCompleted
			done.TotalDuration = 600
			_, err := store.UpsertSession(ctx, done)
			So(err, ShouldBeNil)

			stale := sampleSession("sess-1")
			stale.CompletionStatus = model.StatusInProgress
			stale.TotalDuration = 300
			res, err := store.UpsertSession(ctx, stale)

			Convey("Then the terminal status survives but other fields update", func() {
				So(err, ShouldBeNil)
				So(res.Session.CompletionStatus, ShouldEqual, model.StatusCompleted)
				So(res.Session.TotalDuration, ShouldEqual, 300)
			})
		})

		Convey("When a terminal status replaces another terminal status", func() {
			done := sampleSession("sess-1")
			done.CompletionStatus = model.StatusAbandoned
			_, err := store.UpsertSession(ctx, done)
			So(err, ShouldBeNil)

			failed := sampleSession("sess-1")
			failed.CompletionStatus = model.StatusFailed
			res, err := store.UpsertSession(ctx, failed)

			Convey("Then the new terminal status is stored", func() {
				So(err, ShouldBeNil)
				So(res.Session.CompletionStatus, ShouldEqual, model.StatusFailed)
			})
		})

		Convey("When interactions are persisted", func() {
			_, err := store.UpsertSession(ctx, sampleSession("sess-1"))
			So(err, ShouldBeNil)

			got, err := store.GetSession(ctx, "sess-1")

			Convey("Then the variant payload round-trips", func() {
				So(err, ShouldBeNil)
				So(got.Interactions, ShouldHaveLength, 1)
				So(got.Interactions[0].Question, ShouldNotBeNil)
				So(got.Interactions[0].Question.QuestionKey, ShouldEqual, "q1")
				So(got.Interactions[0].Question.UserAnswers, ShouldResemble, [][]int{{1}})
			})
		})
	})
}

func TestGetSession(t *testing.T) {
	Convey("Given an open store", t, func() {
		store := openTestStore(t)
		ctx := context.Background()

		Convey("When an unknown session is requested", func() {
			_, err := store.GetSession(ctx, "missing")

			Convey("Then ErrNotFound is returned", func() {
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestListSessions(t *testing.T) {
	Convey("Given a store with several sessions", t, func() {
		store := openTestStore(t)
		ctx := context.Background()

		base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
		for i, spec := range []struct {
			id      string
			subject string
			status  model.CompletionStatus
		}{
			{"sess-a", "user-1", model.StatusCompleted},
			{"sess-b", "user-1", model.StatusInProgress},
			{"sess-c", "user-2", model.StatusCompleted},
		} {
			rec := sampleSession(spec.id)
			rec.SubjectID = spec.subject
			rec.CompletionStatus = spec.status
			rec.StartTime = base.Add(time.Duration(i) * time.Hour)
			_, err := store.UpsertSession(ctx, rec)
			So(err, ShouldBeNil)
		}

		Convey("When listed without filters", func() {
			got, err := store.ListSessions(ctx, types.SessionFilter{})

			Convey("Then all sessions come back newest first", func() {
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 3)
				So(got[0].SessionID, ShouldEqual, "sess-c")
				So(got[2].SessionID, ShouldEqual, "sess-a")
			})
		})

		Convey("When filtered by subject and status", func() {
			got, err := store.ListSessions(ctx, types.SessionFilter{
				SubjectID:        "user-1",
				CompletionStatus: model.StatusCompleted,
			})

			Convey("Then only matching sessions come back", func() {
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 1)
				So(got[0].SessionID, ShouldEqual, "sess-a")
			})
		})

		Convey("When filtered by date range", func() {
			got, err := store.ListSessions(ctx, types.SessionFilter{
				From: base.Add(30 * time.Minute),
				To:   base.Add(90 * time.Minute),
			})

			Convey("Then only sessions starting inside the range come back", func() {
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 1)
				So(got[0].SessionID, ShouldEqual, "sess-b")
			})
		})

		Convey("When paginated", func() {
			page1, err := store.ListSessions(ctx, types.SessionFilter{Page: 1, Limit: 2})
			So(err, ShouldBeNil)
			page2, err := store.ListSessions(ctx, types.SessionFilter{Page: 2, Limit: 2})
			So(err, ShouldBeNil)

			Convey("Then pages partition the ordered result", func() {
				So(page1, ShouldHaveLength, 2)
				So(page2, ShouldHaveLength, 1)
				So(page1[0].SessionID, ShouldEqual, "sess-c")
				So(page2[0].SessionID, ShouldEqual, "sess-a")
			})

			Convey("And the count ignores pagination", func() {
				count, err := store.CountSessions(ctx, types.SessionFilter{Limit: 2})
				So(err, ShouldBeNil)
				So(count, ShouldEqual, 3)
			})
		})

		Convey("When scoped to a tenant", func() {
			personal := sampleSession("sess-p")
			personal.Build.ContainerID = "personal-user-3"
			personal.SubjectID = "user-3"
			_, err := store.UpsertSession(ctx, personal)
			So(err, ShouldBeNil)

			got, err := store.ListSessions(ctx, types.SessionFilter{TenantID: "acme"})

			Convey("Then only that tenant's organization containers match", func() {
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 3)
				for _, rec := range got {
					So(rec.Build.ContainerID, ShouldEqual, "org-acme")
				}
			})

			Convey("And an unknown tenant matches nothing", func() {
				none, err := store.ListSessions(ctx, types.SessionFilter{TenantID: "globex"})
				So(err, ShouldBeNil)
				So(none, ShouldBeEmpty)
			})
		})

		Convey("When a session is tagged", func() {
			So(store.TagSession(ctx, "sess-b", "tag-onboarding"), ShouldBeNil)
			So(store.TagSession(ctx, "sess-b", "tag-onboarding"), ShouldBeNil)

			got, err := store.ListSessions(ctx, types.SessionFilter{TagID: "tag-onboarding"})

			Convey("Then the tag filter matches it", func() {
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 1)
				So(got[0].SessionID, ShouldEqual, "sess-b")
			})
		})
	})
}

func TestUpsertProgress(t *testing.T) {
	Convey("Given an open store", t, func() {
		store := openTestStore(t)
		ctx := context.Background()

		build := model.BuildIdentity{Name: "safety-101", Type: "wisetrainer", ContainerID: "org-acme"}
		completed := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

		Convey("When progress is recorded for the first time", func() {
			err := store.UpsertProgress(ctx, ProgressRecord{
				ID: "prog-1", SubjectID: "user-1", Build: build,
				Progress: 100, CompletedAt: completed,
			})
			So(err, ShouldBeNil)

			got, err := store.GetProgress(ctx, "user-1", build)

			Convey("Then the row is readable", func() {
				So(err, ShouldBeNil)
				So(got.Progress, ShouldEqual, 100)
				So(got.CompletedAt.Equal(completed), ShouldBeTrue)
			})
		})

		Convey("When a replayed completion carries an earlier timestamp", func() {
			So(store.UpsertProgress(ctx, ProgressRecord{
				ID: "prog-1", SubjectID: "user-1", Build: build,
				Progress: 100, CompletedAt: completed,
			}), ShouldBeNil)
			So(store.UpsertProgress(ctx, ProgressRecord{
				ID: "prog-2", SubjectID: "user-1", Build: build,
				Progress: 100, CompletedAt: completed.Add(-time.Hour),
			}), ShouldBeNil)

			got, err := store.GetProgress(ctx, "user-1", build)

			Convey("Then the original timestamp is kept", func() {
				So(err, ShouldBeNil)
				So(got.CompletedAt.Equal(completed), ShouldBeTrue)
			})
		})

		Convey("When a later completion arrives", func() {
			So(store.UpsertProgress(ctx, ProgressRecord{
				ID: "prog-1", SubjectID: "user-1", Build: build,
				Progress: 100, CompletedAt: completed,
			}), ShouldBeNil)
			later := completed.Add(2 * time.Hour)
			So(store.UpsertProgress(ctx, ProgressRecord{
				ID: "prog-2", SubjectID: "user-1", Build: build,
				Progress: 100, CompletedAt: later,
			}), ShouldBeNil)

			got, err := store.GetProgress(ctx, "user-1", build)

			Convey("Then the timestamp moves forward", func() {
				So(err, ShouldBeNil)
				So(got.CompletedAt.Equal(later), ShouldBeTrue)
			})
		})

		Convey("When different build versions complete", func() {
			v2 := build
			v2.Version = "2.0.0"
			So(store.UpsertProgress(ctx, ProgressRecord{
				ID: "prog-1", SubjectID: "user-1", Build: build,
				Progress: 100, CompletedAt: completed,
			}), ShouldBeNil)
			So(store.UpsertProgress(ctx, ProgressRecord{
				ID: "prog-2", SubjectID: "user-1", Build: v2,
				Progress: 100, CompletedAt: completed.Add(time.Hour),
			}), ShouldBeNil)

			Convey("Then they share a single progress row", func() {
				_, progress, err := store.Totals(ctx)
				So(err, ShouldBeNil)
				So(progress, ShouldEqual, 1)
			})
		})

		Convey("When no progress exists for a subject", func() {
			_, err := store.GetProgress(ctx, "nobody", build)

			Convey("Then ErrNotFound is returned", func() {
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestAssignments(t *testing.T) {
	Convey("Given a store with one assignment", t, func() {
		store := openTestStore(t)
		ctx := context.Background()

		build := model.BuildIdentity{Name: "safety-101", Type: "wisetrainer", ContainerID: "org-acme"}
		So(store.CreateAssignment(ctx, AssignmentRecord{
			ID: "assign-1", SubjectID: "user-1", Build: build,
		}), ShouldBeNil)

		Convey("When the assignment is completed", func() {
			at := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
			err := store.CompleteAssignment(ctx, "user-1", build, at)

			Convey("Then the call succeeds", func() {
				So(err, ShouldBeNil)
			})

			Convey("And completing again keeps the original timestamp", func() {
				So(err, ShouldBeNil)
				So(store.CompleteAssignment(ctx, "user-1", build, at.Add(time.Hour)), ShouldBeNil)
			})
		})

		Convey("When no assignment matches", func() {
			err := store.CompleteAssignment(ctx, "user-2", build, time.Now())

			Convey("Then ErrNotFound is returned", func() {
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestTransact(t *testing.T) {
	Convey("Given an open store", t, func() {
		store := openTestStore(t)
		ctx := context.Background()

		Convey("When the transaction function succeeds", func() {
			err := store.Transact(ctx, func(tx Store) error {
				if _, err := tx.UpsertSession(ctx, sampleSession("sess-1")); err != nil {
					return err
				}
				return tx.UpsertProgress(ctx, ProgressRecord{
					ID: "prog-1", SubjectID: "user-1",
					Build:    model.BuildIdentity{Name: "safety-101", Type: "wisetrainer", ContainerID: "org-acme"},
					Progress: 100, CompletedAt: time.Now(),
				})
			})

			Convey("Then both writes are visible", func() {
				So(err, ShouldBeNil)
				sessions, progress, err := store.Totals(ctx)
				So(err, ShouldBeNil)
				So(sessions, ShouldEqual, 1)
				So(progress, ShouldEqual, 1)
			})
		})

		Convey("When the transaction function fails", func() {
			boom := errors.New("boom")
			err := store.Transact(ctx, func(tx Store) error {
				if _, err := tx.UpsertSession(ctx, sampleSession("sess-1")); err != nil {
					return err
				}
				return boom
			})

			Convey("Then nothing is committed", func() {
				So(errors.Is(err, boom), ShouldBeTrue)
				sessions, _, totalsErr := store.Totals(ctx)
				So(totalsErr, ShouldBeNil)
				So(sessions, ShouldEqual, 0)
			})
		})
	})
}
