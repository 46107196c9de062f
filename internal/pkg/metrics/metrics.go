package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	PromRegistry   = prometheus.NewRegistry()
	SlotRegisterer = prometheus.WrapRegistererWithPrefix("slotupdate_", PromRegistry)

	ComponentInstalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "component_installs_total",
			Help: "Component installations by installer kind and outcome",
		},
		[]string{"kind", "status"},
	)
	BootVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boot_verifications_total",
			Help: "Boot health verifications by result",
		},
		[]string{"result"},
	)
	UpdateStage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "update_stage",
			Help: "Last stage reached by the update attempt",
		},
	)
	InstallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "component_install_duration_seconds",
			Help:    "Duration of component installations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		},
		[]string{"kind"},
	)
)

// Install outcomes.
const (
	StatusStarted       = "started"
	StatusWriteError    = "write_error"
	StatusWriteComplete = "write_complete"
)

func init() {
	SlotRegisterer.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	SlotRegisterer.MustRegister(collectors.NewGoCollector())
	SlotRegisterer.MustRegister(ComponentInstalls)
	SlotRegisterer.MustRegister(BootVerifications)
	SlotRegisterer.MustRegister(UpdateStage)
	SlotRegisterer.MustRegister(InstallDuration)
}

// WriteTextfile dumps the registry for the node exporter textfile collector.
// An empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, PromRegistry)
}
