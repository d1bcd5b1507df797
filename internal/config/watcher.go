package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// OperatorWatcher 授权文件监听器
//
// 监听授权文件所在目录（编辑器保存时常用重命名替换文件），
// 文件变化后防抖重载并更新 OperatorGate，再通知回调。
type OperatorWatcher struct {
	path        string
	gate        *OperatorGate
	watcher     *fsnotify.Watcher
	callbacks   []OperatorChangeCallback
	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	reloadDelay time.Duration
	timer       *time.Timer
	started     bool

	// ErrorHandler 重载失败时调用，默认写到stderr
	ErrorHandler func(error)
}

// OperatorChangeCallback 授权变更回调函数
type OperatorChangeCallback func(oldAuth, newAuth *OperatorAuth)

// NewOperatorWatcher 创建授权文件监听器
func NewOperatorWatcher(path string, gate *OperatorGate) (*OperatorWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &OperatorWatcher{
		path:        filepath.Clean(path),
		gate:        gate,
		watcher:     watcher,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		reloadDelay: 1 * time.Second, // 防抖延迟
		ErrorHandler: func(err error) {
			fmt.Fprintf(os.Stderr, "operator watcher: %v\n", err)
		},
	}, nil
}

// SetReloadDelay 设置防抖延迟
func (ow *OperatorWatcher) SetReloadDelay(d time.Duration) {
	ow.mu.Lock()
	defer ow.mu.Unlock()
	ow.reloadDelay = d
}

// Start 启动监听
func (ow *OperatorWatcher) Start() error {
	dir := filepath.Dir(ow.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to prepare directory %s: %w", dir, err)
	}

	if err := ow.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	ow.started = true
	go ow.watchLoop()
	return nil
}

// Stop 停止监听
func (ow *OperatorWatcher) Stop() error {
	ow.cancel()
	ow.mu.Lock()
	if ow.timer != nil {
		ow.timer.Stop()
	}
	ow.mu.Unlock()
	err := ow.watcher.Close()
	if ow.started {
		<-ow.done
	}
	return err
}

// AddCallback 添加授权变更回调
func (ow *OperatorWatcher) AddCallback(callback OperatorChangeCallback) {
	ow.mu.Lock()
	defer ow.mu.Unlock()
	ow.callbacks = append(ow.callbacks, callback)
}

// watchLoop 监听循环
func (ow *OperatorWatcher) watchLoop() {
	defer close(ow.done)
	for {
		select {
		case <-ow.ctx.Done():
			return
		case event, ok := <-ow.watcher.Events:
			if !ok {
				return
			}
			ow.handleFileEvent(event)
		case err, ok := <-ow.watcher.Errors:
			if !ok {
				return
			}
			ow.ErrorHandler(err)
		}
	}
}

// handleFileEvent 处理文件事件
func (ow *OperatorWatcher) handleFileEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != ow.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	// 防抖：窗口内的多次事件合并为一次重载
	ow.mu.Lock()
	defer ow.mu.Unlock()
	if ow.timer != nil {
		ow.timer.Stop()
	}
	ow.timer = time.AfterFunc(ow.reloadDelay, func() {
		if ow.ctx.Err() != nil {
			return
		}
		if err := ow.Reload(); err != nil {
			ow.ErrorHandler(err)
		}
	})
}

// Reload 重新加载授权文件
func (ow *OperatorWatcher) Reload() error {
	auth, err := LoadOperatorAuth(ow.path)
	if err != nil {
		return err
	}

	old := ow.gate.Update(auth)

	ow.mu.Lock()
	callbacks := append([]OperatorChangeCallback(nil), ow.callbacks...)
	ow.mu.Unlock()

	for _, callback := range callbacks {
		callback(old, auth)
	}
	return nil
}

// WatchOperator 加载并监听授权文件（便捷函数）
func WatchOperator(path string, callback OperatorChangeCallback) (*OperatorGate, *OperatorWatcher, error) {
	auth, err := LoadOperatorAuth(path)
	if err != nil {
		return nil, nil, err
	}
	gate := NewOperatorGate(auth)

	watcher, err := NewOperatorWatcher(path, gate)
	if err != nil {
		return nil, nil, err
	}
	if callback != nil {
		watcher.AddCallback(callback)
	}
	if err := watcher.Start(); err != nil {
		return nil, nil, err
	}
	return gate, watcher, nil
}
