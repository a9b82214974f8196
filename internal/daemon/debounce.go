package daemon

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/oseligman/claude-autoyes/internal/detect"
)

// ResponseRecord remembers the last prompt a pane was answered for. It lives
// only in the loop's working memory; losing it on restart costs at most one
// duplicate response to a still-showing prompt, never a missed one.
type ResponseRecord struct {
	Hash   string    // sha256 of the pane text that triggered the response
	SentAt time.Time // when the response was dispatched
}

// snapshotHash keys debounce on content, not on "already responded once":
// a new prompt with different text must get a fresh response.
func snapshotHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Debounce suppresses repeated responses to an unchanged prompt snapshot,
// keyed by instance identity.
type Debounce struct {
	mu      sync.Mutex
	records map[string]ResponseRecord
}

// NewDebounce returns an empty debounce memory.
func NewDebounce() *Debounce {
	return &Debounce{records: make(map[string]ResponseRecord)}
}

// ShouldRespond decides whether a pane deserves a keystroke right now.
// Not prompting clears the record (the pane moved on); prompting with the
// exact text we already answered returns false.
func (d *Debounce) ShouldRespond(target, content string, matcher *detect.PromptMatcher) bool {
	if !matcher.Matches(content) {
		d.Clear(target)
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if rec, ok := d.records[target]; ok && rec.Hash == snapshotHash(content) {
		return false
	}
	return true
}

// MarkResponded records the snapshot that was just answered.
func (d *Debounce) MarkResponded(target, content string, sentAt time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records[target] = ResponseRecord{Hash: snapshotHash(content), SentAt: sentAt}
}

// Clear drops the record for one target.
func (d *Debounce) Clear(target string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.records, target)
}

// LastResponse returns the record for a target, if any.
func (d *Debounce) LastResponse(target string) (ResponseRecord, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.records[target]
	return rec, ok
}

// Prune drops records for targets that are no longer present, so the map
// cannot grow without bound as panes come and go.
func (d *Debounce) Prune(active map[string]bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for target := range d.records {
		if !active[target] {
			delete(d.records, target)
		}
	}
}
