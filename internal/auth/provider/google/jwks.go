package google

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCertsURL is Google's signing-key discovery document.
const DefaultCertsURL = "https://www.googleapis.com/oauth2/v3/certs"

type jwksDocument struct {
	Keys []jwksKey `json:"keys"`
}

type jwksKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// keySet is an immutable snapshot of the discovery document. Readers
// always see a complete set; refreshes swap the whole pointer.
type keySet struct {
	byKid map[string]*rsa.PublicKey
}

// KeyCache holds the provider's signing keys. A background loop
// refreshes them at a coarse interval; an unknown kid triggers an
// on-demand refresh throttled by the finer minRefresh floor, which
// tolerates key rotation without per-request fetch latency.
type KeyCache struct {
	certsURL   string
	client     *http.Client
	refresh    time.Duration
	minRefresh time.Duration

	keys atomic.Pointer[keySet]

	mu        sync.Mutex
	lastFetch time.Time
}

func NewKeyCache(certsURL string, refresh, minRefresh time.Duration) *KeyCache {
	if certsURL == "" {
		certsURL = DefaultCertsURL
	}
	return &KeyCache{
		certsURL:   certsURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		refresh:    refresh,
		minRefresh: minRefresh,
	}
}

// Start launches the coarse background refresh loop. It returns after
// the first fetch attempt so startup surfaces connectivity problems in
// logs early; the loop stops when ctx is done.
func (c *KeyCache) Start(ctx context.Context) error {
	err := c.Refresh(ctx)

	go func() {
		ticker := time.NewTicker(c.refresh)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = c.Refresh(ctx)
			}
		}
	}()

	return err
}

// Key returns the RSA public key for kid. When the kid is unknown it
// refreshes once, unless a fetch already happened within minRefresh.
func (c *KeyCache) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if set := c.keys.Load(); set != nil {
		if key, ok := set.byKid[kid]; ok {
			return key, nil
		}
	}

	c.mu.Lock()
	recent := time.Since(c.lastFetch) < c.minRefresh
	c.mu.Unlock()

	if !recent {
		if err := c.Refresh(ctx); err != nil {
			return nil, err
		}
		if set := c.keys.Load(); set != nil {
			if key, ok := set.byKid[kid]; ok {
				return key, nil
			}
		}
	}

	return nil, fmt.Errorf("jwks: unknown key id %q", kid)
}

// Refresh fetches and parses the discovery document, then atomically
// swaps in the new key set. Concurrent callers serialize on the fetch.
func (c *KeyCache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.certsURL, nil)
	if err != nil {
		return fmt.Errorf("jwks: build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("jwks: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks: fetch: unexpected status %d", resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("jwks: decode: %w", err)
	}

	set := &keySet{byKid: make(map[string]*rsa.PublicKey, len(doc.Keys))}
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := parseRSAKey(k)
		if err != nil {
			return fmt.Errorf("jwks: key %q: %w", k.Kid, err)
		}
		set.byKid[k.Kid] = pub
	}

	c.keys.Store(set)
	c.lastFetch = time.Now()
	return nil
}

func parseRSAKey(k jwksKey) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	if e <= 0 {
		return nil, fmt.Errorf("invalid exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
