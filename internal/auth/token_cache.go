package auth

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"time"

	radix "github.com/mediocregopher/radix/v3"
)

const defaultShardReplicas = 50

// shardRing 把令牌摘要映射到固定的鉴权分片，多实例部署时同一令牌
// 的缓存读写始终落在同一个键空间。分片列表来自启动配置，运行期
// 不会变，环构建一次之后只读，不需要加锁。
type shardRing struct {
	points []ringPoint
}

type ringPoint struct {
	sum   uint32
	shard string
}

func newShardRing(shards []string, replicas int) *shardRing {
	if replicas <= 0 {
		replicas = defaultShardReplicas
	}
	seen := make(map[string]bool, len(shards))
	clean := make([]string, 0, len(shards))
	for _, s := range shards {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		clean = append(clean, s)
	}
	if len(clean) == 0 {
		clean = []string{"yedeli-auth"}
	}
	r := &shardRing{points: make([]ringPoint, 0, len(clean)*replicas)}
	for _, s := range clean {
		for i := 0; i < replicas; i++ {
			r.points = append(r.points, ringPoint{
				sum:   ringHash(s + "#" + strconv.Itoa(i)),
				shard: s,
			})
		}
	}
	sort.Slice(r.points, func(i, j int) bool { return r.points[i].sum < r.points[j].sum })
	return r
}

func ringHash(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

// pick 顺时针找到第一个哈希值不小于 key 的虚拟节点，走到末尾回绕
func (r *shardRing) pick(key string) string {
	sum := ringHash(key)
	i := sort.Search(len(r.points), func(i int) bool { return r.points[i].sum >= sum })
	if i == len(r.points) {
		i = 0
	}
	return r.points[i].shard
}

// TokenCache 把 JWT 的解析结果缓存进 Redis，省掉每个请求的签名
// 校验。redis 为 nil 时缓存整体退化为未命中，鉴权仍然可用。
type TokenCache struct {
	redis radix.Client
	ring  *shardRing
	ttl   time.Duration
}

// NewTokenCache 构建缓存器。shards 为鉴权分片标识，通常每个部署
// 实例一个；ttl 过长没有关系，Get 会按令牌自身的过期时间兜底。
func NewTokenCache(redis radix.Client, shards []string, replicas int, ttl time.Duration) *TokenCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &TokenCache{
		redis: redis,
		ring:  newShardRing(shards, replicas),
		ttl:   ttl,
	}
}

func (c *TokenCache) cacheKey(token string) string {
	sum := sha1.Sum([]byte(token))
	return fmt.Sprintf("yedeli:auth:%s:%s", c.ring.pick(token), hex.EncodeToString(sum[:]))
}

// Get 尝试命中缓存的 claims
func (c *TokenCache) Get(ctx context.Context, token string) (*Claims, bool, error) {
	if c.redis == nil {
		return nil, false, nil
	}
	key := c.cacheKey(token)
	var raw string
	if err := c.redis.Do(radix.Cmd(&raw, "GET", key)); err != nil {
		return nil, false, err
	}
	if raw == "" {
		return nil, false, nil
	}
	var claims Claims
	if err := json.Unmarshal([]byte(raw), &claims); err != nil {
		// 数据损坏，清理后走正常解析
		_ = c.redis.Do(radix.Cmd(nil, "DEL", key))
		return nil, false, nil
	}
	if claims.Role == "" {
		// 旧版本缓存没有角色字段，丢弃重新解析
		_ = c.redis.Do(radix.Cmd(nil, "DEL", key))
		return nil, false, nil
	}
	if claims.ExpiresAt != nil && !time.Now().Before(claims.ExpiresAt.Time) {
		// 缓存条目可能活得比令牌本身久，过期令牌一律按未命中处理，
		// 让签名校验去拒绝它
		_ = c.redis.Do(radix.Cmd(nil, "DEL", key))
		return nil, false, nil
	}
	return &claims, true, nil
}

// Set 缓存解析结果
func (c *TokenCache) Set(ctx context.Context, token string, claims *Claims) error {
	if c.redis == nil || claims == nil {
		return nil
	}
	key := c.cacheKey(token)
	body, _ := json.Marshal(claims)
	if err := c.redis.Do(radix.FlatCmd(nil, "SETEX", key, int64(c.ttl/time.Second), body)); err != nil {
		return err
	}
	return nil
}
