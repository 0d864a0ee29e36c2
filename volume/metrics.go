package volume

import (
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// counters tracks operation counts for a single Volume. It is cheap enough
// to always update; scraping (expvar or Prometheus) reads it lazily.
type counters struct {
	bytesWritten   atomic.Int64
	bytesRead      atomic.Int64
	manifestParses atomic.Int64
}

var (
	// Process-wide aggregates across every Volume, in the same shared-pool
	// style as storage's sharedFilesWastedOpens expvar.Int in
	// file-handle-cache.go: a single package-level registration, updated by
	// any number of Volume instances.
	totalBytesWritten   = expvar.NewInt("swarmvol_bytes_written")
	totalBytesRead      = expvar.NewInt("swarmvol_bytes_read")
	totalManifestParses = expvar.NewInt("swarmvol_manifest_parses")

	debugHandlerOnce sync.Once
)

func init() {
	registerDebugHandler()
}

func registerDebugHandler() {
	debugHandlerOnce.Do(func() {
		http.HandleFunc("/debug/swarmvol", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "bytes_written=%d\nbytes_read=%d\nmanifest_parses=%d\n",
				totalBytesWritten.Value(), totalBytesRead.Value(), totalManifestParses.Value())
		})
	})
}

func (c *counters) addWritten(n int64) {
	if n <= 0 {
		return
	}
	c.bytesWritten.Add(n)
	totalBytesWritten.Add(n)
}

func (c *counters) addRead(n int64) {
	if n <= 0 {
		return
	}
	c.bytesRead.Add(n)
	totalBytesRead.Add(n)
}

func (c *counters) incManifestParses() {
	c.manifestParses.Add(1)
	totalManifestParses.Add(1)
}

// RegisterPrometheus registers gauge funcs reflecting this Volume's
// counters on reg, in the same prometheus.NewGaugeFunc-over-a-registry
// shape as keepstore's nodeMetrics.setupBufferPoolMetrics.
func (v *Volume) RegisterPrometheus(reg *prometheus.Registry) error {
	c := &v.counters
	return errors.Join(
		reg.Register(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "swarmvol",
				Name:      "bytes_written",
				Help:      "Bytes written into this volume.",
			},
			func() float64 { return float64(c.bytesWritten.Load()) },
		)),
		reg.Register(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "swarmvol",
				Name:      "bytes_read",
				Help:      "Bytes read from this volume.",
			},
			func() float64 { return float64(c.bytesRead.Load()) },
		)),
		reg.Register(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "swarmvol",
				Name:      "manifest_parses",
				Help:      "Number of times this volume parsed a multi-file manifest.",
			},
			func() float64 { return float64(c.manifestParses.Load()) },
		)),
	)
}
