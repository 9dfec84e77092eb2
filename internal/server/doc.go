// Package server hosts the two service surfaces: the TCP command server
// speaking newline-delimited JSON to local clients, and the HTTP monitoring
// API with health, stream inspection and Prometheus metrics endpoints.
package server
