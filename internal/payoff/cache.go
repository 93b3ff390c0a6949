package payoff

import (
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/robaho/go-optsim/pkg/common"
)

// volatility is bucketed to basis points so nearby slider values share a curve
const volBuckets = 10000

// bucket for non-finite or absurd volatility
const degenerateBucket = math.MinInt64

// Key identifies a cached payoff curve
type Key struct {
	Days      int
	VolBucket int64
	Kind      common.OptionKind
}

func newKey(days int, volatility float64, kind common.OptionKind) Key {
	bucket := int64(degenerateBucket)
	if !math.IsNaN(volatility) && !math.IsInf(volatility, 0) && math.Abs(volatility) < 1e6 {
		bucket = int64(math.Round(volatility * volBuckets))
	}
	return Key{Days: days, VolBucket: bucket, Kind: kind}
}

// Volatility is the representative volatility of the bucket, NaN for the degenerate bucket
func (k Key) Volatility() float64 {
	if k.VolBucket == degenerateBucket {
		return math.NaN()
	}
	return float64(k.VolBucket) / volBuckets
}

// curveCache is a bounded least recently used cache. Curves are fully built before they are added,
// and never modified afterwards, so readers never observe a partial curve.
type curveCache struct {
	lru *lru.Cache[Key, []Point]
}

func newCurveCache(size int) (*curveCache, error) {
	c, err := lru.New[Key, []Point](size)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create curve cache")
	}
	return &curveCache{lru: c}, nil
}

func (c *curveCache) get(k Key) ([]Point, bool) {
	return c.lru.Get(k)
}

func (c *curveCache) publish(k Key, points []Point) {
	c.lru.Add(k, points)
}

func (c *curveCache) len() int {
	return c.lru.Len()
}

func (c *curveCache) purge() {
	c.lru.Purge()
}
