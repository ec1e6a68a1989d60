package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

// Resolver maps a bearer token to an identity. Resolution never fails:
// unknown, malformed or empty tokens resolve to the anonymous identity and
// the session gate decides rejection.
type Resolver interface {
	Resolve(ctx context.Context, token string) models.Identity
}

// StoreResolver resolves tokens against the credential store, with an
// optional Redis read-through cache in front of it.
type StoreResolver struct {
	tokens repositories.TokenRepository
	cache  *redis.Client
	ttl    time.Duration
}

// NewStoreResolver constructs a StoreResolver. cache may be nil.
func NewStoreResolver(tokens repositories.TokenRepository, cache *redis.Client, ttl time.Duration) *StoreResolver {
	return &StoreResolver{tokens: tokens, cache: cache, ttl: ttl}
}

type cachedIdentity struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

// Resolve looks the token up in the cache, then the store. Any failure along
// the way yields the anonymous identity.
func (r *StoreResolver) Resolve(ctx context.Context, token string) models.Identity {
	if token == "" {
		return models.Anonymous
	}

	if identity, ok := r.fromCache(ctx, token); ok {
		return identity
	}

	user, err := r.tokens.GetUserByToken(ctx, token)
	if err != nil {
		if !errors.Is(err, repositories.ErrTokenNotFound) {
			logrus.WithError(err).Warn("token lookup failed")
		}
		return models.Anonymous
	}

	identity := models.Identity{ID: user.ID, Username: user.Username, Authenticated: true}
	r.toCache(ctx, token, identity)
	return identity
}

func (r *StoreResolver) fromCache(ctx context.Context, token string) (models.Identity, bool) {
	if r.cache == nil {
		return models.Anonymous, false
	}
	raw, err := r.cache.Get(ctx, cacheKey(token)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logrus.WithError(err).Debug("token cache read failed")
		}
		return models.Anonymous, false
	}
	var cached cachedIdentity
	if err := json.Unmarshal(raw, &cached); err != nil {
		return models.Anonymous, false
	}
	return models.Identity{ID: cached.ID, Username: cached.Username, Authenticated: true}, true
}

func (r *StoreResolver) toCache(ctx context.Context, token string, identity models.Identity) {
	if r.cache == nil {
		return
	}
	raw, err := json.Marshal(cachedIdentity{ID: identity.ID, Username: identity.Username})
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, cacheKey(token), raw, r.ttl).Err(); err != nil {
		logrus.WithError(err).Debug("token cache write failed")
	}
}

func cacheKey(token string) string {
	return "auth:token:" + token
}
