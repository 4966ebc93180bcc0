package obs

import (
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerBuildInfo sync.Once
	buildInfo         = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "capgate_build_info",
		Help: "Constant 1, labelled with the running build.",
	}, []string{"version", "commit", "goversion"})
)

// InitBuildInfo publishes capgate_build_info for this binary.
func InitBuildInfo(version, commit string) {
	registerBuildInfo.Do(func() { prometheus.MustRegister(buildInfo) })
	buildInfo.WithLabelValues(version, commit, runtime.Version()).Set(1)
}
