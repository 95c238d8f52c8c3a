package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

const defaultJWKSCacheTTL = 5 * time.Minute

var errKeyNotFound = errors.New("signing key not found")

type jsonWebKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jsonWebKeySet struct {
	Keys []jsonWebKey `json:"keys"`
}

// KeySet holds the RSA keys of an identity provider. An unknown kid or an
// expired set triggers a refetch; concurrent refetches share one request.
type KeySet struct {
	url    string
	ttl    time.Duration
	client *http.Client
	group  singleflight.Group
	now    func() time.Time

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func NewKeySet(url string, ttl time.Duration) *KeySet {
	return &KeySet{
		url:    url,
		ttl:    ttl,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
		keys:   make(map[string]*rsa.PublicKey),
	}
}

func (s *KeySet) Key(kid string) (*rsa.PublicKey, error) {
	s.mu.RLock()
	key, ok := s.keys[kid]
	fresh := s.now().Sub(s.fetchedAt) <= s.ttl
	s.mu.RUnlock()
	if ok && fresh {
		return key, nil
	}

	if _, err, _ := s.group.Do("refresh", func() (interface{}, error) {
		return nil, s.refresh()
	}); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if key, ok = s.keys[kid]; !ok {
		return nil, fmt.Errorf("%w: kid %q", errKeyNotFound, kid)
	}
	return key, nil
}

func (s *KeySet) refresh() error {
	resp, err := s.client.Get(s.url)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}

	var set jsonWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := rsaPublicKey(k)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}

	s.mu.Lock()
	s.keys = keys
	s.fetchedAt = s.now()
	s.mu.Unlock()
	return nil
}

// Keyfunc selects the verification key by the token's kid header.
func (s *KeySet) Keyfunc(token *jwt.Token) (interface{}, error) {
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("token has no kid header")
	}
	return s.Key(kid)
}

func rsaPublicKey(k jsonWebKey) (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	if len(n) == 0 || len(e) == 0 {
		return nil, errors.New("empty key material")
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(n),
		E: int(new(big.Int).SetBytes(e).Int64()),
	}, nil
}
