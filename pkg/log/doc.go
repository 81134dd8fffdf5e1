// Package log provides structured logging for workerman using zerolog.
//
// Master holds a zerolog.Logger obtained via WithComponent and Worker
// one obtained via WithWorkerID, both at construction time; the
// package-level helpers (Info, Debug, ...) serve call sites without a
// scoped logger of their own, such as the Controller and the
// bootstrap path.
package log
