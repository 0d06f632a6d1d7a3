package metrics

import (
	"time"

	"gorm.io/gorm"
)

// Collector 周期性采样数据库连接池指标。
// 追加链路的压力首先体现在连接池耗尽上,定期上报便于提前告警。
type Collector struct {
	db       *gorm.DB
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewCollector 创建连接池采样器,interval 为采样周期
func NewCollector(db *gorm.DB, interval time.Duration) *Collector {
	return &Collector{
		db:       db,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start 启动后台采样循环
func (c *Collector) Start() {
	go c.run()
}

// Stop 停止采样并等待循环退出
func (c *Collector) Stop() {
	close(c.stop)
	<-c.done
}

func (c *Collector) run() {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			_ = UpdateDatabaseConnections(c.db)
		}
	}
}
