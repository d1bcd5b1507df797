package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"auroraagent/internal/pkg/logger"
)

// Mirror 审计记录镜像，Publish 不得阻塞调用方
type Mirror interface {
	Publish(stream string, line []byte)
	Close() error
}

// RedisOptions Redis镜像配置
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	StreamPrefix string
	MaxLen       int64
	BufferSize   int
}

type mirrorEntry struct {
	stream string
	line   []byte
}

// RedisMirror 把审计行异步写入Redis Stream（XADD MAXLEN ~）
// 缓冲区满时丢弃并计数，本地JSONL始终是权威记录
type RedisMirror struct {
	client  *redis.Client
	opts    RedisOptions
	queue   chan mirrorEntry
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewRedisMirror 连接Redis并启动发布协程
func NewRedisMirror(ctx context.Context, opts RedisOptions) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	// 测试连接
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return newRedisMirror(client, opts), nil
}

func newRedisMirror(client *redis.Client, opts RedisOptions) *RedisMirror {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1024
	}
	if opts.StreamPrefix == "" {
		opts.StreamPrefix = "aurora"
	}
	m := &RedisMirror{
		client: client,
		opts:   opts,
		queue:  make(chan mirrorEntry, opts.BufferSize),
	}
	m.wg.Add(1)
	go m.run()
	return m
}

// StreamKey Redis中的流名称
func (m *RedisMirror) StreamKey(stream string) string {
	return m.opts.StreamPrefix + ":" + stream
}

// Publish 入缓冲，从不阻塞
func (m *RedisMirror) Publish(stream string, line []byte) {
	entry := mirrorEntry{stream: stream, line: append([]byte(nil), line...)}
	defer func() {
		// Close 之后的发布被丢弃
		if recover() != nil {
			m.dropped.Add(1)
		}
	}()
	select {
	case m.queue <- entry:
	default:
		m.dropped.Add(1)
	}
}

func (m *RedisMirror) run() {
	defer m.wg.Done()
	for entry := range m.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := m.client.XAdd(ctx, &redis.XAddArgs{
			Stream: m.StreamKey(entry.stream),
			MaxLen: m.opts.MaxLen,
			Approx: true,
			Values: map[string]interface{}{"record": string(entry.line)},
		}).Err()
		cancel()
		if err != nil {
			// 只在首次失败时写日志，避免Redis不可用时刷屏
			if m.failed.Add(1) == 1 {
				logger.LogError("audit-mirror", err, map[string]interface{}{"stream": entry.stream})
			}
		}
	}
}

// Dropped 被丢弃的记录数
func (m *RedisMirror) Dropped() int64 {
	return m.dropped.Load()
}

// Failed 写入失败的记录数
func (m *RedisMirror) Failed() int64 {
	return m.failed.Load()
}

// Close 排空缓冲并关闭连接
func (m *RedisMirror) Close() error {
	var err error
	m.once.Do(func() {
		close(m.queue)
		m.wg.Wait()
		err = m.client.Close()
	})
	return err
}
