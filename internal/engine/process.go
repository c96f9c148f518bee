package engine

import (
	"strings"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/fabrictools/rulescan/internal/logging"
)

// killProcessesByName terminates every running process whose executable name
// matches name. Failures are logged and swallowed; a stale engine that will
// not die only matters if the subsequent file replacement fails.
var killProcessesByName = func(name string) {
	procs, err := process.Processes()
	if err != nil {
		logging.Warn("process enumeration failed", "error", err)
		return
	}

	for _, p := range procs {
		pname, err := p.Name()
		if err != nil {
			continue
		}
		if !strings.EqualFold(pname, name) {
			continue
		}
		logging.ProcessKill(name, int(p.Pid), p.Kill())
	}
}
