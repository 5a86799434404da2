package credential

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/patrickmn/go-cache"
)

const cacheKey = "credential"

// Cached memoizes a present credential from inner for ttl. Absence is
// never cached so a newly issued token is seen on the next call.
type Cached struct {
	inner Store
	cache *cache.Cache
}

func NewCached(inner Store, ttl time.Duration) *Cached {
	return &Cached{
		inner: inner,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *Cached) Get(ctx context.Context) (string, bool) {
	if v, ok := c.cache.Get(cacheKey); ok {
		return v.(string), true
	}
	token, ok := c.inner.Get(ctx)
	if !ok {
		return "", false
	}
	c.cache.SetDefault(cacheKey, token)
	return token, true
}

// Invalidate drops the memoized credential.
func (c *Cached) Invalidate() {
	c.cache.Delete(cacheKey)
}

// ExpiryChecked reports a JWT credential whose exp claim has passed as
// absent. Tokens that are not JWTs pass through untouched; the signature
// is not verified here, the upstream API does that.
type ExpiryChecked struct {
	inner Store
	now   func() time.Time
}

func NewExpiryChecked(inner Store) *ExpiryChecked {
	return &ExpiryChecked{inner: inner, now: time.Now}
}

// Invalidate passes through to the wrapped store.
func (e *ExpiryChecked) Invalidate() {
	Invalidate(e.inner)
}

func (e *ExpiryChecked) Get(ctx context.Context) (string, bool) {
	token, ok := e.inner.Get(ctx)
	if !ok {
		return "", false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return token, true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return token, true
	}
	if !exp.After(e.now()) {
		return "", false
	}
	return token, true
}
