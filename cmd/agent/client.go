/*
 * @author: Sun977
 * @date: 2026.01.21
 * @description: 客户端子命令，通过HTTP接口访问运行中的控制台
 */

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"auroraagent/internal/executor/base"
	modelbase "auroraagent/internal/model/base"
)

var (
	submitAction  string
	submitParams  map[string]string
	submitMeta    map[string]string
	submitTimeout int
	submitWait    bool
	submitPoll    time.Duration
	listLimit     int
	eventsLimit   int
)

var submitCmd = &cobra.Command{
	Use:   "submit <agent> [prompt...]",
	Short: "提交任务",
	Long: `向指定代理提交任务并输出任务ID。

CLI代理使用提示词，输入控制执行器使用 --action 与 --param。
参数值按JSON解析，解析失败时作为字符串。

示例:
  aurora submit toolA "explain main.go" --timeout 60 --wait
  aurora submit input --action click --param x=100 --param y=200
  aurora submit input --action hotkey --param 'keys=["ctrl","c"]'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &modelbase.SubmitTaskRequest{
			Agent:          args[0],
			Prompt:         strings.Join(args[1:], " "),
			Action:         submitAction,
			Params:         parseParams(submitParams),
			TimeoutSeconds: submitTimeout,
			Metadata:       submitMeta,
		}
		if req.Prompt == "" && req.Action == "" {
			return fmt.Errorf("either a prompt or --action is required")
		}

		ctx := cmd.Context()
		c := newConsoleClient()
		resp, err := c.Submit(ctx, req)
		if err != nil {
			return err
		}
		pterm.Success.Printfln("Task %s queued on %s", resp.TaskID, resp.Agent)
		if !submitWait {
			return nil
		}

		spinner, _ := pterm.DefaultSpinner.Start("Waiting for task " + resp.TaskID)
		task, err := waitTask(ctx, resp.TaskID, submitPoll)
		if err != nil {
			if spinner != nil {
				spinner.Fail(err.Error())
			}
			return err
		}
		if spinner != nil {
			if task.Status == base.TaskStatusCompleted {
				spinner.Success("Task " + string(task.Status))
			} else {
				spinner.Warning("Task " + string(task.Status))
			}
		}
		renderTask(task)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "查询任务状态",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := newConsoleClient().GetTask(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		renderTask(task)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list <agent>",
	Short: "列出代理最近的任务",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tasks, err := newConsoleClient().ListRecent(cmd.Context(), args[0], listLimit)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			pterm.Info.Printfln("No tasks for %s", args[0])
			return nil
		}
		data := pterm.TableData{{"ID", "Status", "Retries", "Created", "Duration"}}
		for _, t := range tasks {
			duration := "-"
			if t.Result != nil {
				duration = (time.Duration(t.Result.DurationMs) * time.Millisecond).String()
			}
			data = append(data, []string{t.ID, string(t.Status), strconv.Itoa(t.RetryCount), t.CreatedAt.Format(time.RFC3339), duration})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

var healthCmd = &cobra.Command{
	Use:   "health [agent]",
	Short: "显示执行器健康快照",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newConsoleClient()
		var snapshots []base.ExecutorHealth
		if len(args) == 1 {
			h, err := c.GetHealth(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			snapshots = append(snapshots, *h)
		} else {
			all, err := c.ListHealth(cmd.Context())
			if err != nil {
				return err
			}
			snapshots = all
		}
		return renderHealth(snapshots)
	},
}

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat",
	Short: "显示最近一次心跳",
	RunE: func(cmd *cobra.Command, args []string) error {
		hb, err := newConsoleClient().GetHeartbeat(cmd.Context())
		if err != nil {
			return err
		}
		pterm.DefaultSection.Printfln("Heartbeat #%d at %s", hb.Sequence, hb.Timestamp.Format(time.RFC3339))
		pterm.Info.Printfln("Uptime: %s", (time.Duration(hb.UptimeSeconds) * time.Second).String())
		if hb.Process != nil {
			pterm.Info.Printfln("Process: pid=%d goroutines=%d", hb.Process.PID, hb.Process.Goroutines)
		}
		return renderHealth(hb.Executors)
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "显示最近的恢复事件",
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := newConsoleClient().RecoveryEvents(cmd.Context(), eventsLimit)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			pterm.Info.Println("No recovery events")
			return nil
		}
		data := pterm.TableData{{"Time", "Component", "Event", "Restarts", "Detail"}}
		for _, e := range events {
			data = append(data, []string{e.Timestamp.Format(time.RFC3339), e.Component, string(e.EventType), strconv.Itoa(e.RestartCount), e.Detail})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitAction, "action", "", "输入动作 (click, type, hotkey, ...)")
	submitCmd.Flags().StringToStringVar(&submitParams, "param", nil, "动作参数 key=value，可重复")
	submitCmd.Flags().StringToStringVar(&submitMeta, "meta", nil, "任务元数据 key=value，可重复")
	submitCmd.Flags().IntVar(&submitTimeout, "timeout", 0, "任务超时秒数 (0使用代理默认值)")
	submitCmd.Flags().BoolVar(&submitWait, "wait", false, "等待任务结束并输出结果")
	submitCmd.Flags().DurationVar(&submitPoll, "poll", 500*time.Millisecond, "等待时的轮询间隔")
	listCmd.Flags().IntVar(&listLimit, "limit", 10, "最多显示条数")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 20, "最多显示条数")

	rootCmd.AddCommand(submitCmd, statusCmd, listCmd, healthCmd, heartbeatCmd, eventsCmd)
}

// parseParams 参数值按JSON解析，失败时保留为字符串
func parseParams(raw map[string]string) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		var decoded interface{}
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			out[k] = decoded
		} else {
			out[k] = v
		}
	}
	return out
}

// waitTask 轮询直到任务进入终态
func waitTask(ctx context.Context, taskID string, poll time.Duration) (*base.Task, error) {
	c := newConsoleClient()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		task, err := c.GetTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if task.Status.IsTerminal() {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func renderTask(t *base.Task) {
	rows := pterm.TableData{
		{"ID", t.ID},
		{"Agent", t.Agent},
		{"Status", string(t.Status)},
		{"Retries", strconv.Itoa(t.RetryCount)},
		{"Created", t.CreatedAt.Format(time.RFC3339)},
	}
	if t.Result != nil {
		if t.Result.ExitCode != nil {
			rows = append(rows, []string{"Exit Code", strconv.Itoa(*t.Result.ExitCode)})
		}
		rows = append(rows, []string{"Duration", (time.Duration(t.Result.DurationMs) * time.Millisecond).String()})
		if t.Result.ErrorDetail != "" {
			rows = append(rows, []string{"Error", t.Result.ErrorDetail})
		}
	}
	_ = pterm.DefaultTable.WithData(rows).Render()
	if t.Result != nil && t.Result.Output != "" {
		pterm.DefaultBox.WithTitle("Output").Println(strings.TrimRight(t.Result.Output, "\n"))
	}
}

func renderHealth(snapshots []base.ExecutorHealth) error {
	data := pterm.TableData{{"Agent", "Type", "Running", "Available", "Queue", "In-Flight", "Errors", "Restarts", "Last Error"}}
	for _, h := range snapshots {
		running := string(h.Running)
		switch h.Running {
		case base.LivenessAlive:
			running = pterm.Green(running)
		case base.LivenessStopped:
			running = pterm.Red(running)
		default:
			running = pterm.Yellow(running)
		}
		data = append(data, []string{
			h.Agent, string(h.Type), running, strconv.FormatBool(h.Available),
			strconv.Itoa(h.QueueDepth), strconv.Itoa(h.InFlight),
			strconv.FormatInt(h.ErrorCount, 10), strconv.Itoa(h.RestartCount), h.LastError,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
