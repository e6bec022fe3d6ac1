// Package logging wraps log/slog into the node-wide structured
// logger. Every record carries the service name and version; format
// (json or text), destination and level come from the logging section
// of config.yaml. Components derive child loggers with With, so a
// record can always be traced back to the subsystem that wrote it.
package logging
