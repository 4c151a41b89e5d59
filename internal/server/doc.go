// Package server implements the devserve HTTP surface.
//
// A Server serves a document root with net/http's file server. The file
// handler is composed with middleware rather than subclassed:
//
//   - RequestID tags every request with an X-Request-ID (github.com/google/uuid)
//   - Timer measures the file handler alone and logs requests at or above
//     the slow-request threshold (github.com/benbjohnson/clock makes the
//     measurement testable)
//   - gzip compression through github.com/klauspost/compress/gzhttp, optional
//
// Prometheus metrics (github.com/prometheus/client_golang) are kept in a
// private registry and exposed on MetricsPath when enabled.
package server
