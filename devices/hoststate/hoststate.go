// Package hoststate implements the host-state activation input: a
// poll-and-cache boolean lookup ("fx enabled", "track armed", "project
// running") that an ActivationCondition's HostStateName consults, fed by an
// ETag-polled companion HTTP endpoint.
package hoststate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jdginn/controlcore/logging"
)

var log = logging.Get(logging.APP)

// Poller periodically fetches a flat namespace of boolean host-state flags
// from a REAPER companion HTTP endpoint and caches them for lock-free-ish
// (mutex-guarded) lookup by name. A failed fetch logs and retries rather
// than panicking — a host-state read feeds
// activation evaluation on the main thread and must never crash the unit.
type Poller struct {
	url    string
	client *http.Client

	mu    sync.RWMutex
	cache map[string]bool
	etag  string
}

// NewPoller builds a Poller against url, which must return a JSON object of
// string->bool flags and an ETag header the endpoint honors via
// If-None-Match (304 responses leave the cache untouched).
func NewPoller(url string) *Poller {
	return &Poller{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		cache:  make(map[string]bool),
	}
}

// Run polls at interval until ctx is canceled. Intended to run in its own
// goroutine for the lifetime of a unit.
func (p *Poller) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := p.poll(ctx); err != nil {
			log.Debug("host-state poll failed", slog.Any("err", err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) poll(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}
	p.mu.RLock()
	etag := p.etag
	p.mu.RUnlock()
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hoststate: unexpected status %d", resp.StatusCode)
	}

	var flags map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&flags); err != nil {
		return err
	}

	p.mu.Lock()
	p.cache = flags
	p.etag = resp.Header.Get("ETag")
	p.mu.Unlock()
	return nil
}

// HostState reports whether the named flag is currently true. Unknown names
// report false rather than erroring — the core never treats an unresolved
// lookup as fatal. It is the func(string) bool callback
// ActivationCondition.Evaluate (and unitmodel.ActivationSpec.Compile) expect.
func (p *Poller) HostState(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cache[name]
}

// TrackArmedName formats the host-state flag name for "track N is
// record-armed".
func TrackArmedName(track int) string {
	return "track_armed/" + strconv.Itoa(track)
}

// FXEnabledName formats the host-state flag name for "FX N on track T is
// enabled/bypassed".
func FXEnabledName(track, fx int) string {
	return "fx_enabled/" + strconv.Itoa(track) + "/" + strconv.Itoa(fx)
}

// ProjectRunningName is the host-state flag name for "transport is playing
// or recording".
const ProjectRunningName = "project_running"

// ParseHostStateName validates name is one of the recognized flag shapes and
// reports which category it belongs to, for config validation / editor
// autocomplete; the poller itself treats names as opaque cache keys.
func ParseHostStateName(name string) (category string, ok bool) {
	switch {
	case name == ProjectRunningName:
		return "project", true
	case strings.HasPrefix(name, "track_armed/"):
		return "track_armed", true
	case strings.HasPrefix(name, "fx_enabled/"):
		return "fx_enabled", true
	default:
		return "", false
	}
}
