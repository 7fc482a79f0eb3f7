package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/foxy/internal/lock"
)

var (
	lockRecordsDesc = prometheus.NewDesc(
		"foxy_lock_records",
		"Lock records in the lock directory by owner status.",
		[]string{"status"}, nil,
	)
	lockScrapeErrorDesc = prometheus.NewDesc(
		"foxy_lock_scrape_error",
		"1 if the lock directory could not be read during the last scrape.",
		nil, nil,
	)
)

// LockCollector reports lock directory contents at scrape time.
type LockCollector struct {
	dir    string
	detect lock.DetectorFunc
}

// NewLockCollector returns a collector over dir. A nil detect uses lock.PIDFile.
func NewLockCollector(dir string, detect lock.DetectorFunc) *LockCollector {
	if detect == nil {
		detect = lock.PIDFile
	}
	return &LockCollector{dir: dir, detect: detect}
}

func (c *LockCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- lockRecordsDesc
	ch <- lockScrapeErrorDesc
}

func (c *LockCollector) Collect(ch chan<- prometheus.Metric) {
	entries, err := lock.List(c.dir, c.detect)
	if err != nil {
		ch <- prometheus.MustNewConstMetric(lockScrapeErrorDesc, prometheus.GaugeValue, 1)
		return
	}
	ch <- prometheus.MustNewConstMetric(lockScrapeErrorDesc, prometheus.GaugeValue, 0)

	counts := map[string]float64{"running": 0, "stale": 0, "invalid": 0}
	for _, e := range entries {
		switch {
		case e.Alive:
			counts["running"]++
		case e.Err != "":
			counts["invalid"]++
		default:
			counts["stale"]++
		}
	}
	for status, n := range counts {
		ch <- prometheus.MustNewConstMetric(lockRecordsDesc, prometheus.GaugeValue, n, status)
	}
}
