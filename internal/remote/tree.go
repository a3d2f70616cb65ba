package remote

import (
	"os/exec"

	"github.com/shirou/gopsutil/v3/process"
)

// killTree kills the ssh process and every descendant it spawned.
// Descendants are collected before the parent dies so they can still be found.
func killTree(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	var descendants []*process.Process
	if p, err := process.NewProcess(int32(cmd.Process.Pid)); err == nil {
		descendants = collectDescendants(p)
	}

	err := killProcessGroup(cmd)
	for _, d := range descendants {
		_ = d.Kill()
	}
	return err
}

func collectDescendants(p *process.Process) []*process.Process {
	children, err := p.Children()
	if err != nil {
		return nil
	}
	out := make([]*process.Process, 0, len(children))
	for _, c := range children {
		out = append(out, c)
		out = append(out, collectDescendants(c)...)
	}
	return out
}
