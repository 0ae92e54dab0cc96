package repository

import "time"

// Option applies a configuration option to the SQLiteStore.
type Option func(*SQLiteStore)

// WithBusyTimeout sets how long SQLite waits on a locked database
// before failing a statement.
func WithBusyTimeout(timeout time.Duration) Option {
	return func(s *SQLiteStore) {
		if timeout > 0 {
			s.busyTimeout = timeout
		}
	}
}

// WithMaxOpenConns limits the connection pool size.
func WithMaxOpenConns(n int) Option {
	return func(s *SQLiteStore) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}
