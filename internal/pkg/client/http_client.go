/**
 * 控制台HTTP客户端
 * @author: sun977
 * @date: 2025.10.21
 * @description: CLI子命令访问控制台HTTP接口的客户端，解析统一响应结构
 */
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"auroraagent/internal/executor/base"
	modelbase "auroraagent/internal/model/base"
	"auroraagent/internal/pkg/version"
	"auroraagent/internal/service/monitor"
)

// ConsoleClient 控制台客户端接口
type ConsoleClient interface {
	// Submit 提交任务
	Submit(ctx context.Context, req *modelbase.SubmitTaskRequest) (*modelbase.SubmitTaskResponse, error)

	// GetTask 查询任务状态
	GetTask(ctx context.Context, taskID string) (*base.Task, error)

	// ListRecent 查询代理最近任务
	ListRecent(ctx context.Context, agent string, limit int) ([]base.Task, error)

	// ListHealth 所有执行器健康快照
	ListHealth(ctx context.Context) ([]base.ExecutorHealth, error)

	// GetHealth 单个执行器健康快照
	GetHealth(ctx context.Context, agent string) (*base.ExecutorHealth, error)

	// GetHeartbeat 最近一次心跳
	GetHeartbeat(ctx context.Context) (*monitor.HeartbeatRecord, error)

	// RecoveryEvents 最近恢复事件
	RecoveryEvents(ctx context.Context, limit int) ([]base.RecoveryEvent, error)
}

// APIError 服务端返回的错误响应
type APIError struct {
	StatusCode int
	Message    string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (%d): %s", e.Message, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.StatusCode)
}

// IsNotFound 判断是否为404响应
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Options 客户端参数
type Options struct {
	BaseURL    string        // 如 http://127.0.0.1:8090/api/v1
	Timeout    time.Duration // 单次请求超时
	MaxRetries int           // GET请求在连接失败或5xx时的重试次数
	RetryDelay time.Duration
}

// httpClient HTTP客户端实现
type httpClient struct {
	client     *http.Client
	baseURL    string
	userAgent  string
	maxRetries int
	retryDelay time.Duration
}

// NewConsoleClient 创建控制台客户端实例
func NewConsoleClient(opts Options) ConsoleClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &httpClient{
		client: &http.Client{
			Timeout: opts.Timeout,
		},
		baseURL:    opts.BaseURL,
		userAgent:  version.GetUserAgent(),
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
	}
}

// Submit 提交任务，不重试以免重复入队
func (c *httpClient) Submit(ctx context.Context, req *modelbase.SubmitTaskRequest) (*modelbase.SubmitTaskResponse, error) {
	var result modelbase.SubmitTaskResponse
	if err := c.do(ctx, http.MethodPost, "/tasks", req, &result); err != nil {
		return nil, fmt.Errorf("submit task: %w", err)
	}
	return &result, nil
}

// GetTask 查询任务状态
func (c *httpClient) GetTask(ctx context.Context, taskID string) (*base.Task, error) {
	var result base.Task
	if err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(taskID), nil, &result); err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &result, nil
}

// ListRecent 查询代理最近任务
func (c *httpClient) ListRecent(ctx context.Context, agent string, limit int) ([]base.Task, error) {
	path := fmt.Sprintf("/agents/%s/tasks?limit=%s", url.PathEscape(agent), strconv.Itoa(limit))
	var result []base.Task
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return result, nil
}

// ListHealth 所有执行器健康快照
func (c *httpClient) ListHealth(ctx context.Context) ([]base.ExecutorHealth, error) {
	var result []base.ExecutorHealth
	if err := c.do(ctx, http.MethodGet, "/agents", nil, &result); err != nil {
		return nil, fmt.Errorf("list health: %w", err)
	}
	return result, nil
}

// GetHealth 单个执行器健康快照
func (c *httpClient) GetHealth(ctx context.Context, agent string) (*base.ExecutorHealth, error) {
	var result base.ExecutorHealth
	if err := c.do(ctx, http.MethodGet, "/agents/"+url.PathEscape(agent)+"/health", nil, &result); err != nil {
		return nil, fmt.Errorf("get health: %w", err)
	}
	return &result, nil
}

// GetHeartbeat 最近一次心跳
func (c *httpClient) GetHeartbeat(ctx context.Context) (*monitor.HeartbeatRecord, error) {
	var result monitor.HeartbeatRecord
	if err := c.do(ctx, http.MethodGet, "/heartbeat", nil, &result); err != nil {
		return nil, fmt.Errorf("get heartbeat: %w", err)
	}
	return &result, nil
}

// RecoveryEvents 最近恢复事件
func (c *httpClient) RecoveryEvents(ctx context.Context, limit int) ([]base.RecoveryEvent, error) {
	var result []base.RecoveryEvent
	if err := c.do(ctx, http.MethodGet, "/recovery-events?limit="+strconv.Itoa(limit), nil, &result); err != nil {
		return nil, fmt.Errorf("recovery events: %w", err)
	}
	return result, nil
}

// do 执行请求并把响应的 data 字段解码到 out
func (c *httpClient) do(ctx context.Context, method, path string, data interface{}, out interface{}) error {
	var payload []byte
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal request data: %w", err)
		}
		payload = jsonData
	}

	retries := c.maxRetries
	if method != http.MethodGet {
		retries = 0
	}

	var (
		resp *http.Response
		err  error
	)
	for i := 0; i <= retries; i++ {
		resp, err = c.send(ctx, method, c.baseURL+path, payload)
		if err == nil && resp.StatusCode < 500 {
			break
		}
		if i < retries {
			if resp != nil {
				resp.Body.Close()
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
	}
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var envelope struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		if resp.StatusCode >= 400 {
			return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode), Detail: string(body)}
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Message: envelope.Message, Detail: envelope.Error}
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

func (c *httpClient) send(ctx context.Context, method, fullURL string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	return c.client.Do(req)
}
