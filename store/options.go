package store

import (
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// DefaultTable is the table name used when none is configured.
const DefaultTable = "eeg_data"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Options configures writers and readers.
type Options struct {
	// Table is the name of the segment table. Default: DefaultTable.
	Table string

	// BusyTimeout bounds how long SQLite waits on a locked database.
	// Default: 5s.
	BusyTimeout time.Duration

	// Immutable opens readers with SQLite's immutable flag, skipping all
	// locking. Safe because generations are replaced by rename, never
	// modified in place. Default: true.
	Immutable bool

	// Logger receives debug output. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the defaults used by Create and OpenReader.
func DefaultOptions() Options {
	return Options{
		Table:       DefaultTable,
		BusyTimeout: 5 * time.Second,
		Immutable:   true,
	}
}

func buildOptions(optFns []func(*Options)) (Options, error) {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	if !tableName.MatchString(opts.Table) {
		return Options{}, fmt.Errorf("invalid table name %q", opts.Table)
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts, nil
}

// writerDSN builds the DSN for the temp file of a generation under construction.
// Journal mode DELETE keeps the finished generation a single file.
func writerDSN(path string, opts Options) string {
	return fileURI(path, fmt.Sprintf("_pragma=busy_timeout(%d)&_pragma=journal_mode(DELETE)&_pragma=synchronous(FULL)",
		opts.BusyTimeout.Milliseconds()))
}

func readerDSN(path string, opts Options) string {
	query := fmt.Sprintf("mode=ro&_pragma=busy_timeout(%d)", opts.BusyTimeout.Milliseconds())
	if opts.Immutable {
		query += "&immutable=1"
	}
	return fileURI(path, query)
}

// fileURI percent-encodes path so that '#', '?' and '%' in directory names
// reach SQLite as part of the file name.
func fileURI(path, query string) string {
	p := filepath.ToSlash(path)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u := url.URL{Scheme: "file", Path: p, RawQuery: query}
	return u.String()
}
