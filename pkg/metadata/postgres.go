// Package metadata maintains the process-wide author/source catalog backed
// by Postgres. The catalog is read on startup and refreshed whenever the
// database NOTIFYs on the configured channel; readers always see a complete
// snapshot because the refresher swaps in a whole new map.
package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/lib/pq"

	"github.com/cogitoproject/cogito/pkg/config"
)

// Catalog exposes the author → sources mapping the vector-store adapter
// resolves filters against. Implementations must be safe for concurrent use.
type Catalog interface {
	// AuthorSources returns a snapshot of the author → sorted source
	// titles mapping. Callers must not mutate the returned map.
	AuthorSources() map[string][]string

	// AllAuthors returns all author names, sorted.
	AllAuthors() []string

	// AllSources returns all distinct source titles, sorted.
	AllSources() []string

	Close() error
}

// PostgresCatalog implements Catalog over a filters table of
// (authors, sources) rows.
type PostgresCatalog struct {
	db       *sql.DB
	listener *pq.Listener
	cfg      *config.MetadataStoreConfig

	// snapshot holds a map[string][]string; swapped whole on refresh.
	snapshot atomic.Value

	done chan struct{}
}

const (
	listenerMinReconnect = 10 * time.Second
	listenerMaxReconnect = time.Minute
)

func NewPostgresCatalogFromConfig(cfg *config.MetadataStoreConfig) (*PostgresCatalog, error) {
	db, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata database: %w", err)
	}

	c := &PostgresCatalog{
		db:   db,
		cfg:  cfg,
		done: make(chan struct{}),
	}
	c.snapshot.Store(map[string][]string{})

	if err := c.refresh(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to load author/source catalog: %w", err)
	}

	c.listener = pq.NewListener(cfg.ConnectionString(), listenerMinReconnect, listenerMaxReconnect,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				slog.Warn("metadata listener event", "event", int(ev), "error", err)
			}
		})
	if err := c.listener.Listen(cfg.NotifyChannel); err != nil {
		_ = c.listener.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to LISTEN on %s: %w", cfg.NotifyChannel, err)
	}

	go c.listenLoop(c.listener.Notify)

	return c, nil
}

func (c *PostgresCatalog) AuthorSources() map[string][]string {
	return c.snapshot.Load().(map[string][]string)
}

func (c *PostgresCatalog) AllAuthors() []string {
	snapshot := c.AuthorSources()
	authors := make([]string, 0, len(snapshot))
	for author := range snapshot {
		authors = append(authors, author)
	}
	sort.Strings(authors)
	return authors
}

func (c *PostgresCatalog) AllSources() []string {
	snapshot := c.AuthorSources()
	seen := make(map[string]struct{})
	for _, sources := range snapshot {
		for _, s := range sources {
			seen[s] = struct{}{}
		}
	}
	sources := make([]string, 0, len(seen))
	for s := range seen {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	return sources
}

// Close shuts the listener down first so the refresh loop can't run against
// a closed database.
func (c *PostgresCatalog) Close() error {
	if c.listener != nil {
		_ = c.listener.Close()
	}
	close(c.done)
	return c.db.Close()
}

// listenLoop waits for notifications and refreshes the snapshot. The
// periodic ping keeps the listener connection honest across network blips.
func (c *PostgresCatalog) listenLoop(notify <-chan *pq.Notification) {
	for {
		select {
		case <-c.done:
			return
		case n, ok := <-notify:
			// The channel closes when the listener shuts down.
			if !ok {
				return
			}
			// n is nil when the connection was re-established;
			// refresh either way since changes may have been missed.
			if n != nil {
				slog.Debug("metadata change notification", "channel", n.Channel)
			}
			if err := c.refresh(context.Background()); err != nil {
				slog.Warn("failed to refresh author/source catalog", "error", err)
			}
		case <-time.After(90 * time.Second):
			go func() {
				_ = c.listener.Ping()
			}()
		}
	}
}

// refresh rebuilds the snapshot from the filters table and swaps it in
// atomically.
func (c *PostgresCatalog) refresh(ctx context.Context) error {
	// Table name comes from config, not user input.
	query := fmt.Sprintf("SELECT authors, sources FROM %s", pq.QuoteIdentifier(c.cfg.FiltersTable))
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query filters table: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tmp := make(map[string]map[string]struct{})
	for rows.Next() {
		var author, source sql.NullString
		if err := rows.Scan(&author, &source); err != nil {
			return fmt.Errorf("failed to scan filters row: %w", err)
		}
		if !author.Valid || !source.Valid {
			continue
		}
		if tmp[author.String] == nil {
			tmp[author.String] = make(map[string]struct{})
		}
		tmp[author.String][source.String] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate filters rows: %w", err)
	}

	snapshot := make(map[string][]string, len(tmp))
	for author, sources := range tmp {
		sorted := make([]string, 0, len(sources))
		for s := range sources {
			sorted = append(sorted, s)
		}
		sort.Strings(sorted)
		snapshot[author] = sorted
	}

	c.snapshot.Store(snapshot)
	slog.Debug("author/source catalog refreshed", "authors", len(snapshot))
	return nil
}
