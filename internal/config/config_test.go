package config_test

import (
	"testing"

	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.LogLevel, convey.ShouldEqual, "info")
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.DBPath, convey.ShouldEqual, "telemetry.db")
			convey.So(cfg.MetadataDir, convey.ShouldEqual, "metadata")
			convey.So(cfg.DefaultLanguage, convey.ShouldEqual, "fr")
			convey.So(cfg.MaxPageSize, convey.ShouldEqual, 100)
			convey.So(cfg.MostFailedLimit, convey.ShouldEqual, 5)
			convey.So(cfg.StatsSessionCap, convey.ShouldEqual, 10_000)
		})
	})
}
