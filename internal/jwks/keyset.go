// Package jwks fetches and caches the identity provider's signing keys.
package jwks

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// KeySet is an immutable snapshot of the provider's RSA keys, indexed by kid.
type KeySet struct {
	Keys      map[string]*rsa.PublicKey
	FetchedAt time.Time
}

// Lookup returns the key with the given kid.
func (s *KeySet) Lookup(kid string) (*rsa.PublicKey, bool) {
	if s == nil {
		return nil, false
	}
	k, ok := s.Keys[kid]
	return k, ok
}

func (s *KeySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Keys)
}

// ParseKeySet decodes a JWKS document. Keys that are not RSA or carry no kid
// are skipped; an unparseable document is an error.
func ParseKeySet(body []byte, fetchedAt time.Time) (*KeySet, error) {
	set, err := jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse jwks: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, set.Len())
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		kid := key.KeyID()
		if kid == "" {
			continue
		}
		var pub rsa.PublicKey
		if err := key.Raw(&pub); err != nil {
			continue
		}
		keys[kid] = &pub
	}
	return &KeySet{Keys: keys, FetchedAt: fetchedAt}, nil
}
