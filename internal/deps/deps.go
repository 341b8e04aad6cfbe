package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"

	"facewatch/internal/config"
)

// Requirement defines an external dependency facewatch relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// CheckPath reports whether path exists and grants the requested access bits
// (unix.R_OK, unix.W_OK, ...).
func CheckPath(name, path, description string, mode uint32) Status {
	status := Status{Name: name, Command: path, Description: description}
	if strings.TrimSpace(path) == "" {
		status.Detail = "path not configured"
		return status
	}
	if _, err := os.Stat(path); err != nil {
		status.Detail = fmt.Sprintf("%s does not exist", path)
		return status
	}
	if err := unix.Access(path, mode); err != nil {
		status.Detail = fmt.Sprintf("insufficient permissions: %v", err)
		return status
	}
	status.Available = true
	return status
}

// CheckSystem evaluates every dependency the configuration names. Both the
// doctor command and the daemon startup snapshot use it.
func CheckSystem(cfg *config.Config) []Status {
	reqs := []Requirement{
		{
			Name:        "Interpreter",
			Command:     cfg.Engine.Interpreter,
			Description: "Runs the recognition engine",
		},
		{
			Name:        "FFmpeg",
			Command:     cfg.Camera.FFmpegBinary,
			Description: "Reads frames from the capture device",
			Optional:    true,
		},
	}
	if cfg.Engine.Launcher != "" {
		reqs = append([]Requirement{{
			Name:        "Launcher",
			Command:     cfg.Engine.Launcher,
			Description: "Wraps the engine interpreter",
		}}, reqs...)
	}
	results := CheckBinaries(reqs)
	results = append(results, CheckPath("Engine script", cfg.Engine.Script, "Recognition engine entry point", unix.R_OK))

	device := CheckPath("Camera", cfg.Camera.Device, "Live webcam identification", unix.R_OK|unix.W_OK)
	device.Optional = true
	results = append(results, device)
	return results
}
