//go:build windows

package cli

import "os/exec"

// configureProcessGroup Windows 下使用默认的 Process.Kill
func configureProcessGroup(cmd *exec.Cmd) {}
