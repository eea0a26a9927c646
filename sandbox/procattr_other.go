//go:build !linux

package sandbox

import "os/exec"

// configureProcAttr is a no-op on non-Linux platforms. The worker is
// terminated through its process handle only.
func configureProcAttr(*exec.Cmd) {}

func killProcessGroup(int) {}
