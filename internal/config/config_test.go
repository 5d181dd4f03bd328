package config

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestNewDefaults(t *testing.T) {
	Convey("Given a default config", t, func() {
		c := New()

		Convey("Then sensible defaults are set", func() {
			So(c.Addr, ShouldEqual, ":9080")
			So(c.LogLevel, ShouldEqual, "info")
			So(c.DatabasePath, ShouldNotBeEmpty)
			So(c.PAPQuota, ShouldEqual, 3)
			So(c.FineIncomeISK, ShouldEqual, 1_000_000_000)
			So(c.RookieDays, ShouldEqual, 90)
			// The fetcher appends /killmails/... itself, so the default
			// must be the bare host.
			So(c.EverefEndpoint, ShouldEqual, "https://data.everef.net")
		})

		Convey("And derived accessors work", func() {
			So(c.Independent(), ShouldBeTrue)
			So(c.Start().Year(), ShouldEqual, 2020)
			So(c.Location(), ShouldNotBeNil)
		})
	})
}

func TestConfigAccessors(t *testing.T) {
	Convey("Given a config with an alliance", t, func() {
		c := New()
		c.AllianceID = 99000001

		Convey("Then Independent is false", func() {
			So(c.Independent(), ShouldBeFalse)
		})
	})

	Convey("Given a config with a bad timezone", t, func() {
		c := New()
		c.LocalTZ = "Mars/Olympus"

		Convey("Then Location falls back to UTC", func() {
			So(c.Location(), ShouldEqual, time.UTC)
		})
	})

	Convey("Given a config with a bad start date", t, func() {
		c := New()
		c.StartDate = "not-a-date"

		Convey("Then Start is the zero time", func() {
			So(c.Start().IsZero(), ShouldBeTrue)
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Given configs with invalid fields", t, func() {
		cases := []struct {
			name   string
			mutate func(*Config)
		}{
			{"empty addr", func(c *Config) { c.Addr = "" }},
			{"empty db path", func(c *Config) { c.DatabasePath = "" }},
			{"negative corp", func(c *Config) { c.CorporationID = -1 }},
			{"zero workers", func(c *Config) { c.WorkerCount = 0 }},
			{"zero queue", func(c *Config) { c.QueueSize = 0 }},
			{"bad start date", func(c *Config) { c.StartDate = "2020/01/01" }},
			{"bad tz", func(c *Config) { c.LocalTZ = "nowhere" }},
		}

		for _, tc := range cases {
			Convey("Then validation fails for "+tc.name, func() {
				c := New()
				tc.mutate(c)
				So(c.validate(), ShouldNotBeNil)
			})
		}
	})

	Convey("Given a default config", t, func() {
		Convey("Then validation passes", func() {
			So(New().validate(), ShouldBeNil)
		})
	})
}
