package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// buildInfo — gauge со значением 1 и метками version/commit.
var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Portier API build information.",
	},
	[]string{"version", "commit"},
)

var registerBuildInfo sync.Once

// InitBuildInfo публикует build_info{version,commit} 1. Повторные вызовы
// только переустанавливают метки.
func InitBuildInfo(version, commit string) {
	registerBuildInfo.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.WithLabelValues(version, commit).Set(1)
}
