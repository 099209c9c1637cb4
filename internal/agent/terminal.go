// ABOUTME: Terminal metadata lookup with a TTL cache keyed by access key
// ABOUTME: Provides resolve, forced refresh, validation, and cache inspection

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"
)

// TerminalInfo describes the service terminal an access key points at
type TerminalInfo struct {
	ID       int               `json:"id"`
	Name     string            `json:"name"`
	Provider TerminalProvider  `json:"provider"`
	Location TerminalLocation  `json:"location"`
	Services []TerminalService `json:"services"`
}

// TerminalProvider identifies the organization operating the terminal
type TerminalProvider struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// TerminalLocation is the physical site the terminal serves
type TerminalLocation struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// TerminalService is one bookable service with its scheduled sessions
type TerminalService struct {
	ID       int               `json:"id"`
	Name     string            `json:"name"`
	Sessions []TerminalSession `json:"sessions"`
}

// TerminalSession is a scheduling window within a service
type TerminalSession struct {
	ID           int    `json:"id"`
	Start        string `json:"start"`
	End          string `json:"end"`
	HasSlotsLeft bool   `json:"hasSlotsLeft"`
}

// ValidationError reports why an access key could not be validated
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// cacheEntry pairs terminal metadata with its fetch time
type cacheEntry struct {
	info      *TerminalInfo
	fetchedAt time.Time
}

// CacheEntry is the inspection view of one cached terminal
type CacheEntry struct {
	AccessKey string        `json:"accessKey"`
	Terminal  *TerminalInfo `json:"terminal"`
	Age       time.Duration `json:"age"`
}

// ResolveTerminal returns terminal metadata for an access key, serving
// from cache while the entry is younger than the configured TTL. A failed
// lookup returns nil rather than an error; callers treat missing metadata
// as a degraded but working state.
func (c *Client) ResolveTerminal(ctx context.Context, accessKey string) *TerminalInfo {
	if info := c.cachedTerminal(accessKey); info != nil {
		return info
	}
	return c.RefreshTerminal(ctx, accessKey)
}

// RefreshTerminal fetches terminal metadata bypassing the cache. The cache
// is updated only on success, so a failed refresh never evicts usable data.
func (c *Client) RefreshTerminal(ctx context.Context, accessKey string) *TerminalInfo {
	info, err := c.lookupTerminal(ctx, accessKey)
	if err != nil {
		c.logger.Warn("terminal lookup failed", "access_key", accessKey, "error", err)
		return nil
	}

	c.mu.Lock()
	c.cache[accessKey] = cacheEntry{info: info, fetchedAt: c.now()}
	c.mu.Unlock()

	c.logger.Debug("terminal metadata cached", "access_key", accessKey, "terminal", info.Name)
	return info
}

// ValidateTerminal checks that an access key resolves to a real terminal.
// The lookup result lands in the cache, so a subsequent conversation using
// the same key starts warm.
func (c *Client) ValidateTerminal(ctx context.Context, accessKey string) (*TerminalInfo, error) {
	if accessKey == "" {
		return nil, &ValidationError{Reason: "access key is required"}
	}
	info := c.ResolveTerminal(ctx, accessKey)
	if info == nil {
		return nil, &ValidationError{Reason: "access key did not resolve to a terminal"}
	}
	return info, nil
}

// InvalidateTerminal drops one cached entry. Unknown keys are a no-op.
func (c *Client) InvalidateTerminal(accessKey string) {
	c.mu.Lock()
	delete(c.cache, accessKey)
	c.mu.Unlock()
}

// InvalidateAllTerminals drops every cached entry
func (c *Client) InvalidateAllTerminals() {
	c.mu.Lock()
	c.cache = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// CacheEntries lists the current cache contents sorted by access key.
// Expired entries are included; they age out lazily on the next resolve.
func (c *Client) CacheEntries() []CacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]CacheEntry, 0, len(c.cache))
	for key, entry := range c.cache {
		entries = append(entries, CacheEntry{
			AccessKey: key,
			Terminal:  entry.info,
			Age:       c.now().Sub(entry.fetchedAt),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].AccessKey < entries[j].AccessKey
	})
	return entries
}

// cachedTerminal returns the cached metadata if present and fresh
func (c *Client) cachedTerminal(accessKey string) *TerminalInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.cache[accessKey]
	if !ok {
		return nil
	}
	if c.now().Sub(entry.fetchedAt) >= c.cacheTTL {
		return nil
	}
	return entry.info
}

// lookupTerminal performs the HTTP fetch against the terminal API
func (c *Client) lookupTerminal(ctx context.Context, accessKey string) (*TerminalInfo, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.chatTimeout)
	defer cancel()

	endpoint := c.terminalURL + "/terminals/" + url.PathEscape(accessKey)
	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating terminal request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling terminal API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("terminal API returned %d: %s", resp.StatusCode, resp.Status)
	}

	var info TerminalInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decoding terminal metadata: %w", err)
	}
	return &info, nil
}
