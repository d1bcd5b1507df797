package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auroraagent/internal/executor/base"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }
func (failingWriter) Close() error              { return nil }

type memoryMirror struct {
	mu    sync.Mutex
	lines map[string][]string
}

func (m *memoryMirror) Publish(stream string, line []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lines == nil {
		m.lines = make(map[string][]string)
	}
	m.lines[stream] = append(m.lines[stream], string(line))
}

func (m *memoryMirror) Close() error { return nil }

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestManager_ConcurrentAppendsDoNotInterleave(t *testing.T) {
	mirror := &memoryMirror{}
	mgr, err := NewManager(Options{Dir: t.TempDir(), Mirror: mirror})
	require.NoError(t, err)

	sink := mgr.Stream("toolA")
	assert.Same(t, sink, mgr.Stream("toolA"))

	const writers, perWriter = 8, 100
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				sink.Write(&TaskRecord{
					TaskID:   strings.Repeat("x", 200),
					Agent:    "toolA",
					Status:   base.TaskStatusCompleted,
					Metadata: map[string]string{"writer": string(rune('a' + w))},
				})
			}
		}(w)
	}
	wg.Wait()
	require.NoError(t, mgr.Close())

	lines := readLines(t, mgr.Path("toolA"))
	require.Len(t, lines, writers*perWriter)
	for _, line := range lines {
		var rec TaskRecord
		require.NoError(t, json.Unmarshal([]byte(line), &rec), "every line is one complete record")
	}
	assert.Equal(t, int64(writers*perWriter), sink.Written())
	assert.Len(t, mirror.lines["toolA"], writers*perWriter)
}

func TestSink_WriteFailureIsSwallowed(t *testing.T) {
	sink := NewSink("broken", failingWriter{}, nil)
	assert.NotPanics(t, func() {
		sink.Write(map[string]string{"k": "v"})
	})
	assert.Equal(t, int64(1), sink.Failures())
	assert.Equal(t, int64(0), sink.Written())

	// 无法序列化的记录同样只计数
	sink.Write(map[string]interface{}{"bad": make(chan int)})
	assert.Equal(t, int64(2), sink.Failures())
}

func TestNewTaskRecord_FingerprintsPayload(t *testing.T) {
	task := &base.Task{
		ID:         "t1",
		Agent:      "toolA",
		Payload:    base.Payload{Prompt: "my secret prompt"},
		Status:     base.TaskStatusFailed,
		RetryCount: 2,
		Metadata:   map[string]string{"operator": "alice"},
		Result:     &base.TaskResult{ErrorDetail: "boom"},
	}
	rec := NewTaskRecord(task, 42)

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "my secret prompt")
	assert.Len(t, rec.PayloadSHA256, 64)
	assert.Equal(t, "boom", rec.ErrorDetail)
	assert.Equal(t, int64(42), rec.DurationMs)

	// 相同负载指纹稳定，不同负载指纹不同
	a := Fingerprint(base.Payload{Action: "click", Params: map[string]interface{}{"x": 1, "y": 2}})
	b := Fingerprint(base.Payload{Action: "click", Params: map[string]interface{}{"y": 2, "x": 1}})
	c := Fingerprint(base.Payload{Action: "click", Params: map[string]interface{}{"x": 3, "y": 2}})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestSummarizeAndCountLines(t *testing.T) {
	assert.Equal(t, "one two three", Summarize("  one two   three ", 10))
	assert.Equal(t, "1 2 3 4 5 6 7 8 9 10", Summarize("1 2 3 4 5 6 7 8 9 10 11 12", 10))
	assert.Equal(t, 2, CountLines("a\n\nb\n"))
	assert.Equal(t, 0, CountLines(""))
}

func TestRedisMirror_Publish(t *testing.T) {
	addr := os.Getenv("AURORA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("AURORA_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	prefix := "aurora-test-" + time.Now().Format("150405.000")
	mirror, err := NewRedisMirror(ctx, RedisOptions{Addr: addr, StreamPrefix: prefix, MaxLen: 100})
	require.NoError(t, err)

	mirror.Publish("heartbeat", []byte(`{"uptime_seconds":1}`))
	client := mirror.client
	require.Eventually(t, func() bool {
		n, err := client.XLen(ctx, mirror.StreamKey("heartbeat")).Result()
		return err == nil && n == 1
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, client.Del(ctx, mirror.StreamKey("heartbeat")).Err())
	require.NoError(t, mirror.Close())
	assert.NoError(t, mirror.Close(), "close is idempotent")
}
