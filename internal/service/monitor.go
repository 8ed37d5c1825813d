package service

import (
	"sync"
	"time"
)

// Monitor 监控服务，用于统计错误和核心链路指标
type Monitor struct {
	mu sync.RWMutex

	// 错误统计
	RedisErrors int64
	MQErrors    int64
	DBErrors    int64

	// 准入统计
	AdmissionRequests  int64
	AdmissionAdmitted  int64
	AdmissionConflicts int64 // 条件更新未命中的重试次数
	AdmissionRejected  int64
	CapacityReleases   int64

	// Worker 统计
	WorkerProcessed int64
	WorkerFailed    int64

	// 时间统计
	LastRedisError    time.Time
	LastMQError       time.Time
	LastDBError       time.Time
	LastAdmissionTime time.Time
	LastWorkerTime    time.Time
}

var globalMonitor = &Monitor{}

// GetMonitor 获取全局监控实例
func GetMonitor() *Monitor {
	return globalMonitor
}

// RecordRedisError 记录Redis错误
func (m *Monitor) RecordRedisError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RedisErrors++
	m.LastRedisError = time.Now()
}

// RecordMQError 记录MQ错误
func (m *Monitor) RecordMQError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MQErrors++
	m.LastMQError = time.Now()
}

// RecordDBError 记录数据库错误
func (m *Monitor) RecordDBError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DBErrors++
	m.LastDBError = time.Now()
}

// RecordAdmissionRequest 记录一次下单请求
func (m *Monitor) RecordAdmissionRequest() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AdmissionRequests++
	m.LastAdmissionTime = time.Now()
}

// RecordAdmissionAdmitted 记录准入成功
func (m *Monitor) RecordAdmissionAdmitted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AdmissionAdmitted++
}

// RecordAdmissionConflict 记录一次提交竞争失败
func (m *Monitor) RecordAdmissionConflict() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AdmissionConflicts++
}

// RecordAdmissionRejected 记录准入被拒绝
func (m *Monitor) RecordAdmissionRejected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AdmissionRejected++
}

// RecordCapacityRelease 记录一次产能释放
func (m *Monitor) RecordCapacityRelease() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CapacityReleases++
}

// RecordWorkerProcessed 记录Worker处理成功
func (m *Monitor) RecordWorkerProcessed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WorkerProcessed++
	m.LastWorkerTime = time.Now()
}

// RecordWorkerFailed 记录Worker处理失败
func (m *Monitor) RecordWorkerFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WorkerFailed++
}

// GetStats 获取统计信息
func (m *Monitor) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	admitRate := float64(0)
	if m.AdmissionRequests > 0 {
		admitRate = float64(m.AdmissionAdmitted) / float64(m.AdmissionRequests) * 100
	}

	workerSuccessRate := float64(0)
	totalWorker := m.WorkerProcessed + m.WorkerFailed
	if totalWorker > 0 {
		workerSuccessRate = float64(m.WorkerProcessed) / float64(totalWorker) * 100
	}

	return map[string]interface{}{
		"errors": map[string]interface{}{
			"redis": m.RedisErrors,
			"mq":    m.MQErrors,
			"db":    m.DBErrors,
		},
		"admission": map[string]interface{}{
			"requests":   m.AdmissionRequests,
			"admitted":   m.AdmissionAdmitted,
			"conflicts":  m.AdmissionConflicts,
			"rejected":   m.AdmissionRejected,
			"releases":   m.CapacityReleases,
			"admit_rate": admitRate,
		},
		"worker": map[string]interface{}{
			"processed":    m.WorkerProcessed,
			"failed":       m.WorkerFailed,
			"success_rate": workerSuccessRate,
		},
		"last_events": map[string]interface{}{
			"redis_error":    m.LastRedisError,
			"mq_error":       m.LastMQError,
			"db_error":       m.LastDBError,
			"last_admission": m.LastAdmissionTime,
			"last_worker":    m.LastWorkerTime,
		},
	}
}

// Reset 重置统计（用于测试或定期清理）
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RedisErrors = 0
	m.MQErrors = 0
	m.DBErrors = 0
	m.AdmissionRequests = 0
	m.AdmissionAdmitted = 0
	m.AdmissionConflicts = 0
	m.AdmissionRejected = 0
	m.CapacityReleases = 0
	m.WorkerProcessed = 0
	m.WorkerFailed = 0
}
