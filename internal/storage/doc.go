// Package storage provides the durable key-value state store used for run
// markers, seen-event sets and OAuth tokens. Two drivers are available:
// sqlite (default) and a dependency-free file snapshot backend.
package storage
