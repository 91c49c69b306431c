package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/pbnjay/memory"
)

// 执行模式
const (
	// ModePooled 使用有上限的协程池
	ModePooled = "pooled"
	// ModeSpawn 每个连接新建一个 goroutine
	ModeSpawn = "spawn"
)

// 背压策略
const (
	// BackpressureBlock 表满时 accept 阻塞等待空位
	BackpressureBlock = "block"
	// BackpressureReject 表满时接受后立即关闭新连接
	BackpressureReject = "reject"
)

// 未完成上下文表默认上限的推导参数
const (
	// perConnMemory 估算的单连接内存占用
	perConnMemory = 256 << 10

	minOutstanding      = 64
	maxOutstanding      = 4096
	fallbackOutstanding = 1024
)

// PoolConfig 工作者池配置
type PoolConfig struct {
	// Mode 执行模式: "pooled" 或 "spawn"
	Mode string `json:"mode"`

	// MaxWorkers 协程池上限（仅 pooled 模式）
	MaxWorkers int `json:"max_workers"`

	// MaxOutstanding 未完成工作者上下文表的容量
	MaxOutstanding int `json:"max_outstanding"`

	// Backpressure 表满时的策略: "block" 或 "reject"
	Backpressure string `json:"backpressure"`

	// ReapInterval 回收周期
	ReapInterval Duration `json:"reap_interval"`

	// ShutdownGrace 关闭时等待在途工作者自然结束的时间
	ShutdownGrace Duration `json:"shutdown_grace"`

	// HistorySize 保留的最近结果条数
	HistorySize int `json:"history_size"`
}

// DefaultPoolConfig 返回默认工作者池配置
//
// MaxOutstanding 按主机内存估算，限制在 [64, 4096]。
func DefaultPoolConfig() PoolConfig {
	n := DefaultMaxOutstanding()
	return PoolConfig{
		Mode:           ModePooled,
		MaxWorkers:     n,
		MaxOutstanding: n,
		Backpressure:   BackpressureBlock,
		ReapInterval:   Duration(100 * time.Millisecond),
		ShutdownGrace:  Duration(5 * time.Second),
		HistorySize:    256,
	}
}

// DefaultMaxOutstanding 根据主机内存推导表容量
func DefaultMaxOutstanding() int {
	return outstandingForMemory(memory.TotalMemory())
}

func outstandingForMemory(total uint64) int {
	if total == 0 {
		return fallbackOutstanding
	}
	n := total / perConnMemory
	switch {
	case n < minOutstanding:
		return minOutstanding
	case n > maxOutstanding:
		return maxOutstanding
	}
	return int(n)
}

// Validate 验证工作者池配置
func (c PoolConfig) Validate() error {
	switch c.Mode {
	case ModePooled:
		if c.MaxWorkers <= 0 {
			return errors.New("pool: max_workers must be positive in pooled mode")
		}
	case ModeSpawn:
	default:
		return fmt.Errorf("pool: unknown mode %q", c.Mode)
	}
	if c.MaxOutstanding <= 0 {
		return errors.New("pool: max_outstanding must be positive")
	}
	switch c.Backpressure {
	case BackpressureBlock, BackpressureReject:
	default:
		return fmt.Errorf("pool: unknown backpressure policy %q", c.Backpressure)
	}
	if c.ReapInterval <= 0 {
		return errors.New("pool: reap_interval must be positive")
	}
	if c.ShutdownGrace < 0 {
		return errors.New("pool: shutdown_grace must be non-negative")
	}
	if c.HistorySize < 0 {
		return errors.New("pool: history_size must be non-negative")
	}
	return nil
}

// WithMaxOutstanding 设置表容量
func (c PoolConfig) WithMaxOutstanding(n int) PoolConfig {
	c.MaxOutstanding = n
	return c
}

// WithBackpressure 设置背压策略
func (c PoolConfig) WithBackpressure(policy string) PoolConfig {
	c.Backpressure = policy
	return c
}

// WithMode 设置执行模式
func (c PoolConfig) WithMode(mode string) PoolConfig {
	c.Mode = mode
	return c
}
