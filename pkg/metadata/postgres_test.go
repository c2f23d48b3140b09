package metadata

import (
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func newLoopCatalog() *PostgresCatalog {
	c := &PostgresCatalog{done: make(chan struct{})}
	c.snapshot.Store(map[string][]string{})
	return c
}

// A closed notify channel means the listener shut down; the loop must exit
// instead of treating the zero reads as notifications (the catalog here has
// no database, so any refresh attempt would fail the test).
func TestListenLoopExitsOnClosedNotifyChannel(t *testing.T) {
	c := newLoopCatalog()

	notify := make(chan *pq.Notification)
	close(notify)

	finished := make(chan struct{})
	go func() {
		c.listenLoop(notify)
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("listenLoop kept running after the notify channel closed")
	}
}

func TestListenLoopExitsOnDone(t *testing.T) {
	c := newLoopCatalog()
	notify := make(chan *pq.Notification)

	finished := make(chan struct{})
	go func() {
		c.listenLoop(notify)
		close(finished)
	}()

	close(c.done)

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("listenLoop kept running after shutdown")
	}
}

func TestCatalogSnapshotViews(t *testing.T) {
	c := newLoopCatalog()
	c.snapshot.Store(map[string][]string{
		"David Hume":            {"A Treatise of Human Nature", "Enquiry"},
		"Benedictus de Spinoza": {"Ethics", "Enquiry"},
	})

	assert.Equal(t, []string{"Benedictus de Spinoza", "David Hume"}, c.AllAuthors())
	assert.Equal(t, []string{"A Treatise of Human Nature", "Enquiry", "Ethics"}, c.AllSources())
}
