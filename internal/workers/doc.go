/*
Package workers sizes worker pools from the CPUs actually available to the
process.

runtime.NumCPU reports host CPUs; inside a container with a CPU limit only
GOMAXPROCS reflects the quota. All sizing here is based on GOMAXPROCS:

	workers.For(workers.TaskScan, cfg.ScanWorkers)           // 2 per CPU, max 16
	workers.For(workers.TaskThumbnail, cfg.ThumbnailWorkers) // 1 per CPU, max 8

A positive configured value always wins, so operators can pin concurrency
with MODELCAT_SCAN_WORKERS or MODELCAT_THUMBNAIL_WORKERS.

ForEach runs a bounded fan-out over a slice and is used by the scanner to
hash and measure new files in parallel before the single-threaded
reconciliation step.
*/
package workers
