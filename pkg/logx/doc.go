// Package logx provides structured logging on top of zerolog with a small
// Field-based API and a Service that supports hot-reload of level and sinks.
package logx
