package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"slices"
	"strings"
	"time"
)

// Requirement is an external binary plus the ffmpeg encoders and filters the
// pipeline invokes through it.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Encoders    []string
	Filters     []string
}

// Status reports whether a requirement can be used. Path is the resolved
// binary; Missing names encoders or filters the build lacks.
type Status struct {
	Name        string
	Command     string
	Path        string
	Description string
	Optional    bool
	Available   bool
	Missing     []string
	Detail      string
}

// CheckBinaries resolves each requirement's command on PATH. It does not run
// the binaries.
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
		switch path, err := exec.LookPath(cmd); {
		case cmd == "":
			status.Detail = "command not configured"
		case err != nil:
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
		default:
			status.Path = path
			status.Available = true
		}
		results = append(results, status)
	}
	return results
}

// checkCapabilities lists the binary's encoders and filters and marks the
// status unavailable when a required one is absent.
func checkCapabilities(ctx context.Context, status *Status, req Requirement) {
	var missing []string
	for _, list := range []struct {
		flag  string
		label string
		want  []string
	}{
		{"-encoders", "encoder", req.Encoders},
		{"-filters", "filter", req.Filters},
	} {
		if len(list.want) == 0 {
			continue
		}
		have, err := listNames(ctx, status.Command, list.flag)
		if err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("cannot list %ss: %v", list.label, err)
			return
		}
		for _, name := range list.want {
			if !slices.Contains(have, name) {
				missing = append(missing, list.label+" "+name)
			}
		}
	}
	if len(missing) > 0 {
		status.Available = false
		status.Missing = missing
		status.Detail = "build lacks " + strings.Join(missing, ", ")
	}
}

// listNames runs `<binary> -hide_banner <flag>` and returns the second column
// of every row, which is where ffmpeg prints encoder and filter names.
func listNames(ctx context.Context, binary, flag string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	output, err := commandContext(ctx, binary, "-hide_banner", flag).Output()
	if err != nil {
		return nil, err
	}
	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		if fields := strings.Fields(scanner.Text()); len(fields) >= 2 {
			names = append(names, fields[1])
		}
	}
	return names, scanner.Err()
}
