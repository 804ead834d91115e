package scraper

import (
	"regexp"
	"strings"
)

// Endpoint is one configured network egress point for a browser session
type Endpoint struct {
	Address string
}

// Rotator hands out proxy endpoints round-robin. The cursor is owned by one
// scraper instance and is not goroutine-safe; the scrape path is strictly
// sequential.
type Rotator struct {
	endpoints []Endpoint
	cursor    int
}

// NewRotator builds a rotator from a configured address list, dropping
// blank entries
func NewRotator(addresses []string) *Rotator {
	endpoints := make([]Endpoint, 0, len(addresses))
	for _, addr := range addresses {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			endpoints = append(endpoints, Endpoint{Address: trimmed})
		}
	}
	return &Rotator{endpoints: endpoints}
}

// Next returns the endpoint at the current cursor and advances the cursor
// circularly. Returns nil when no proxies are configured.
func (r *Rotator) Next() *Endpoint {
	if len(r.endpoints) == 0 {
		return nil
	}
	endpoint := r.endpoints[r.cursor]
	r.cursor = (r.cursor + 1) % len(r.endpoints)
	return &endpoint
}

// Len returns the number of configured endpoints
func (r *Rotator) Len() int {
	return len(r.endpoints)
}

var proxyCredentials = regexp.MustCompile(`//[^@/]+@`)

// maskAddress hides embedded credentials for logging
func maskAddress(addr string) string {
	return proxyCredentials.ReplaceAllString(addr, "//***:***@")
}
