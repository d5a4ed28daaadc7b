package bucketing

import (
	"sync"

	"github.com/spaolacci/murmur3"

	"otp-auth-service/internal/config"
)

// BucketingManager assigns users to stable partition buckets so the
// users table spreads evenly across the cluster. Assignment must stay
// deterministic for the lifetime of the data: changing UserBuckets
// strands existing rows.
type BucketingManager struct {
	userBuckets int
	hasherPool  sync.Pool
	config      *config.Config
}

func NewBucketingManager(cfg *config.Config) *BucketingManager {
	bm := &BucketingManager{
		userBuckets: cfg.Bucketing.UserBuckets,
		config:      cfg,
	}

	// Pool of hash functions to avoid allocation overhead
	bm.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New128()
		},
	}

	return bm
}

// GetUserBucket returns the consistent bucket for a user id
// (0 to userBuckets-1).
func (bm *BucketingManager) GetUserBucket(userID string) int {
	return bm.getBucket(userID, bm.userBuckets)
}

func (bm *BucketingManager) UserBuckets() int {
	return bm.userBuckets
}

func (bm *BucketingManager) getBucket(identifier string, buckets int) int {
	hasher := bm.hasherPool.Get().(murmur3.Hash128)
	defer bm.hasherPool.Put(hasher)

	hasher.Reset()
	_, _ = hasher.Write([]byte(identifier))
	h1, _ := hasher.Sum128()

	return int(h1 % uint64(buckets))
}
