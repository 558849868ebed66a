package shell

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ShellProbeRunner executes a component's post-install probe command.
// The caller bounds the lifetime through ctx; a timeout or non-zero exit
// is a failure carrying whatever the command printed.
type ShellProbeRunner struct{}

func NewShellProbeRunner() *ShellProbeRunner {
	return &ShellProbeRunner{}
}

func (this *ShellProbeRunner) Probe(ctx context.Context, command, workingDirectory string) (string, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", fmt.Errorf("empty probe command")
	}

	probe := exec.CommandContext(ctx, fields[0], fields[1:]...)
	probe.Dir = workingDirectory
	output, err := probe.CombinedOutput()
	detail := strings.TrimSpace(string(output))
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("probe timed out: %s", detail)
	}
	if err != nil {
		return "", fmt.Errorf("probe exited abnormally (%s): %s", err, detail)
	}
	return detail, nil
}
