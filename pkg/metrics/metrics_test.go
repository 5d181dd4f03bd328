package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNewManager(t *testing.T) {
	Convey("Given a manager on a private registry", t, func() {
		reg := prometheus.NewRegistry()
		m := NewManager(
			WithPrometheusRegistry(reg),
			WithNamespace("test"),
			WithSubsystem("stats"),
		)

		Convey("Then it should be created with the configured identity", func() {
			So(m, ShouldNotBeNil)
			So(m.namespace, ShouldEqual, "test")
			So(m.subsystem, ShouldEqual, "stats")
		})

		Convey("And its metrics should be gatherable", func() {
			m.killmailsProcessed.Inc()
			m.uploadRows.WithLabelValues("pap").Add(3)
			families, err := reg.Gather()
			So(err, ShouldBeNil)
			So(len(families), ShouldBeGreaterThan, 0)
		})
	})
}

func TestGlobalHelpers(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording through package helpers", func() {
			RecordKillmailProcessed()
			RecordKillmailInserted()
			RecordKillmailSkipped()
			RecordImportError()
			RecordUpload()
			RecordUploadRows("bounty", 2)
			RecordClientRequest("esi", "200")
			RecordHTTPRequest("dashboard", "GET", "200")
			RecordHTTPRequestDuration("dashboard", "GET", "200", 1.2)
			RecordStoreQueryLatency(0.5)
			RecordStoreUpdateLatency(0.5)
			UpdateQueueSize(1)
			UpdateQueueCapacity(10)
			UpdateQueueUtilization(0.1)
			RecordQueueEnqueue()
			RecordQueueDequeue()
			UpdateWorkerActiveCount(2)
			RecordWorkerProcessingLatency(3.0)
			UpdateTotalPlayers(5)
			UpdateTotalCharacters(9)
			UpdateTotalKillmails(100)

			Convey("Then the registry should expose metric families", func() {
				families, err := GetRegistry().Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
			})
		})
	})
}
