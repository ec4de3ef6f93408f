/*
Package tinyhttpd is a small static file HTTP/1.1 server built on a single
epoll reactor and a bounded worker pool.

One goroutine owns the listening socket and every connection's I/O. Workers
parse requests and compose responses; files are memory-mapped and sent
with writev alongside the header. Idle connections are evicted by a sorted
timer list swept on a periodic alarm. Signals reach the reactor through a
socketpair so they are handled between event batches.

Usage

	tiny-httpd [flags] port

	-workers 8            worker goroutines
	-max-requests 10000   queued request limit
	-docroot ./resources  document root
	-time-slot 5s         idle sweep period (idle timeout is 3x)
	-stats-out file       write statistics on exit (.json or .pb)

Every flag can also be set as HTTPD_<NAME>, e.g. HTTPD_WORKERS=16.
SIGUSR1 logs a statistics snapshot; SIGTERM and SIGINT stop the server.

Modules

  - app: logging setup, lifecycle and statistics output
  - config: flags, environment overrides and validation
  - core: the reactor engine and signal bridge
  - core/http: connection state, request parsing, responses
  - core/poller: epoll readiness
  - core/pools: worker pool and descriptor-indexed slot table
  - core/timer: idle timer list
  - core/observability: shared counters and snapshots
*/
package tinyhttpd
