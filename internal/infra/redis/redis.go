package redis

import (
	"sync"

	radix "github.com/mediocregopher/radix/v3"
	"go.uber.org/zap"

	"github.com/Alihan26/YeDeli/internal/config"
)

var (
	client radix.Client
	once   sync.Once
)

// Init 按配置建立 Redis 连接池，进程内复用同一个池。
// 建议性产能计数器和鉴权缓存都跑在这个池上，连不上直接退出，
// 不让进程带着 nil 客户端启动。
func Init(cfg *config.RedisConfig) radix.Client {
	once.Do(func() {
		size := cfg.PoolSize
		if size <= 0 {
			size = 16
		}
		pool, err := radix.NewPool("tcp", cfg.Addr, size)
		if err != nil {
			zap.L().Fatal("failed to connect redis",
				zap.String("addr", cfg.Addr), zap.Int("pool_size", size), zap.Error(err))
		}
		client = pool
	})
	return client
}

// Client 返回已初始化的客户端，Init 之前调用得到 nil
func Client() radix.Client {
	return client
}
