package service_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	service "github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/app"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should have sensible defaults", func() {
			So(svc, ShouldNotBeNil)
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(
			service.WithDefaultLanguage("en"),
			service.WithMaxPageSize(50),
			service.WithMostFailedLimit(3),
			service.WithStatsSessionCap(1_000),
		)

		Convey("Then it should be created successfully", func() {
			So(svc, ShouldNotBeNil)
		})
	})
}

func TestService_Start(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(
			service.WithDBPath(filepath.Join(t.TempDir(), "telemetry.db")),
		)
		defer svc.Stop()

		Convey("When starting the service", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err := svc.Start(ctx)

			Convey("Then it should start successfully", func() {
				So(err, ShouldBeNil)
			})

			Convey("And it should be marked as started", func() {
				So(err, ShouldBeNil)
				stats := svc.GetStats()
				So(stats["started"], ShouldBeTrue)
				So(stats["totalSessions"], ShouldEqual, 0)
			})

			Convey("And starting twice is a no-op", func() {
				So(err, ShouldBeNil)
				So(svc.Start(ctx), ShouldBeNil)
			})
		})
	})
}
