package metrics

import (
	"context"
	"time"

	"modelcat/internal/logging"
)

// StatsProvider supplies catalog totals to the Collector.
type StatsProvider interface {
	CatalogStats(ctx context.Context) (Stats, error)
}

// Stats holds the current catalog totals
type Stats struct {
	Active     int
	Missing    int
	ByFormat   map[string]int
	Categories int
	Tags       int
	Libraries  int
}

// Collector periodically collects and updates catalog metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
	doneChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection and waits for the loop to exit
func (c *Collector) Stop() {
	close(c.stopChan)
	<-c.doneChan
}

func (c *Collector) collectLoop() {
	defer close(c.doneChan)

	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := c.statsProvider.CatalogStats(ctx)
	if err != nil {
		logging.Warn("Failed to collect catalog stats: %v", err)
		return
	}

	CatalogModelsTotal.WithLabelValues("active").Set(float64(stats.Active))
	CatalogModelsTotal.WithLabelValues("missing").Set(float64(stats.Missing))
	CatalogModelsByFormat.Reset()
	for format, n := range stats.ByFormat {
		CatalogModelsByFormat.WithLabelValues(format).Set(float64(n))
	}
	CatalogCategoriesTotal.Set(float64(stats.Categories))
	CatalogTagsTotal.Set(float64(stats.Tags))
	CatalogLibrariesTotal.Set(float64(stats.Libraries))

	logging.Debug("Metrics collected: active=%d, missing=%d, categories=%d, tags=%d",
		stats.Active, stats.Missing, stats.Categories, stats.Tags)
}
