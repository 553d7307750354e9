package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru/v2"
)

// RedeemedChecker is the narrow slice of AllocationExchange the redemption cycle's stale-voucher
// check actually needs.
type RedeemedChecker interface {
	AllocationsRedeemed(ctx context.Context, allocationID common.Address) (bool, error)
}

// CachingRedeemedChecker decorates a RedeemedChecker with an LRU cache of allocationID -> redeemed.
// It is adapted from a caching-decorator pattern over immutable lookups keyed by a fixed key; here
// the cached value is the allocationsRedeemed boolean, which is safe to cache without invalidation
// because an allocation never un-redeems. A cached `true` is never stale, and a cached `false` is
// re-checked next cycle because only `true` results are stored.
type CachingRedeemedChecker struct {
	inner RedeemedChecker
	log   log.Logger
	cache *lru.Cache[common.Address, bool]
}

// NewCachingRedeemedChecker wraps inner with an LRU cache of the given size.
func NewCachingRedeemedChecker(inner RedeemedChecker, logger log.Logger, cacheSize int) *CachingRedeemedChecker {
	cache, err := lru.New[common.Address, bool](cacheSize)
	if err != nil {
		// Only returns an error for a non-positive size; a fixed, reviewed call site constant
		// should never hit this, so a coding error is the right diagnosis.
		panic(err)
	}
	return &CachingRedeemedChecker{inner: inner, log: logger, cache: cache}
}

// AllocationsRedeemed returns the cached result if this allocation was previously found redeemed,
// otherwise queries the inner checker and caches a true result.
func (c *CachingRedeemedChecker) AllocationsRedeemed(ctx context.Context, allocationID common.Address) (bool, error) {
	if redeemed, ok := c.cache.Get(allocationID); ok && redeemed {
		return true, nil
	}

	redeemed, err := c.inner.AllocationsRedeemed(ctx, allocationID)
	if err != nil {
		return false, err
	}
	if redeemed {
		c.cache.Add(allocationID, true)
	}
	return redeemed, nil
}
