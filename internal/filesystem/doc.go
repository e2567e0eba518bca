/*
Package filesystem provides resilient filesystem operations and root resolution.

# Retry

StatWithRetry and OpenWithRetry wrap os.Stat and os.Open with retry logic for
NFS stale file handle errors (ESTALE). Libraries frequently live on network
shares, and a stale handle during a scan would otherwise show up as a per-file
error or, worse, as a file that vanished.

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())

Defaults: 3 retries, 50ms initial backoff doubling up to 500ms. Only ESTALE
triggers a retry; all other errors fail immediately.

# Roots

RootResolver maps an absolute path to the most specific registered root using
longest-prefix matching. The watcher uses it to find the library a new file
belongs to, and the retry helpers use it to label metrics by library.

	rr := filesystem.NewRootResolver(map[string]string{"prints": "/models/prints"})
	root, ok := rr.Match("/models/prints/benchy/benchy.stl")
*/
package filesystem
