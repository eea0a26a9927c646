//go:build linux

package sandbox

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestProcessExecutorLeavesNoProcessGroup(t *testing.T) {
	executor := newTestExecutor(t, "worker", 300*time.Millisecond, defaultTestOutput)
	procs := trackSpawns(executor)

	result := executor.Execute(context.Background(), ExecutionRequest{Code: "while True:\n    pass\n"})
	assert.Equal(t, StatusError, result.Status)

	require.Len(t, *procs, 1)
	pid := (*procs)[0].Pid()
	require.Positive(t, pid)

	assert.ErrorIs(t, unix.Kill(pid, 0), unix.ESRCH)
	assert.ErrorIs(t, unix.Kill(-pid, 0), unix.ESRCH)
}

// processGone treats a zombie as gone: it no longer runs and only awaits
// its new parent.
func processGone(pid int) bool {
	stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return true
	}
	// the state follows the parenthesised command name
	fields := strings.Fields(string(stat[strings.LastIndexByte(string(stat), ')')+1:]))
	return len(fields) > 0 && fields[0] == "Z"
}

func TestProcessKillReachesDescendants(t *testing.T) {
	p := newTestProcess(t, "spawner")
	stdout, err := p.cmd.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, p.Start())

	line, err := bufio.NewReader(stdout).ReadString('\n')
	require.NoError(t, err)
	childPid, err := strconv.Atoi(strings.TrimSpace(line))
	require.NoError(t, err)
	require.False(t, processGone(childPid))

	require.NoError(t, p.Kill())
	require.NoError(t, p.Reap())

	assert.Eventually(t, func() bool { return processGone(childPid) }, 5*time.Second, 20*time.Millisecond)
}
