// ### 发布流程
// 1. **更新版本号**：修改 `internal/pkg/version/version.go`
// 2. **构建时注入**：-ldflags "-X auroraagent/internal/pkg/version.GitCommit=$(git rev-parse --short HEAD)"
// 3. **推送代码和 Tag**：推送到远程仓库

package version

import "runtime"

var (
	Version    = "0.3.0" // 版本号 -- 发布时候更新版本号
	APIVersion = "v1"
	BuildTime  string
	GitCommit  string
)

// Info 版本信息
type Info struct {
	Service    string `json:"service"`
	Version    string `json:"version"`
	APIVersion string `json:"api_version"`
	BuildTime  string `json:"build_time,omitempty"`
	GitCommit  string `json:"git_commit,omitempty"`
	GoVersion  string `json:"go_version"`
}

func GetVersion() string {
	return Version
}

// GetInfo 完整版本信息
func GetInfo() Info {
	commit := GitCommit
	if commit == "" {
		commit = "unknown"
	}
	return Info{
		Service:    "auroraagent",
		Version:    Version,
		APIVersion: APIVersion,
		BuildTime:  BuildTime,
		GitCommit:  commit,
		GoVersion:  runtime.Version(),
	}
}

// GetUserAgent 命令行客户端请求头
func GetUserAgent() string {
	return "AuroraAgent-CLI/" + Version + " (" + runtime.GOOS + "/" + runtime.GOARCH + ")"
}
