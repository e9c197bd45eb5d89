package storage

import "go.uber.org/zap"

// Option configures an Engine at construction time.
type Option func(*Engine)

// LoadHook replaces reading the single-file database with a user-provided
// source of the serialized payload.
type LoadHook func() (string, error)

// SaveHook replaces writing the single-file database with a user-provided
// sink for the serialized payload.
type SaveHook func(string) error

// WithFile selects single-file mode at the given path.
func WithFile(path string) Option {
	return func(e *Engine) {
		e.file = path
	}
}

// WithFolder selects folder mode rooted at the given directory.
func WithFolder(dir string) Option {
	return func(e *Engine) {
		e.folder = dir
	}
}

// WithAOF enables append-only log persistence: commits append operation
// records instead of rewriting the base store.
func WithAOF() Option {
	return func(e *Engine) {
		e.aofEnabled = true
	}
}

// WithCompression streams every data file through the given codec; file
// paths gain the codec's suffix.
func WithCompression(c Compression) Option {
	return func(e *Engine) {
		e.compression = c
	}
}

// WithSharding lays each partition out in its own shard file. Requires
// folder mode.
func WithSharding() Option {
	return func(e *Engine) {
		e.sharding = true
	}
}

// WithMaxCacheSize bounds the number of resident units in folder and sharded
// modes. Zero means unbounded.
func WithMaxCacheSize(n int) Option {
	return func(e *Engine) {
		e.maxCacheSize = n
	}
}

// WithLoadHook replaces disk reads in single-file mode.
func WithLoadHook(h LoadHook) Option {
	return func(e *Engine) {
		e.loadHook = h
	}
}

// WithSaveHook replaces disk writes in single-file mode.
func WithSaveHook(h SaveHook) Option {
	return func(e *Engine) {
		e.saveHook = h
	}
}

// WithLogger sets the engine logger. The default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}
