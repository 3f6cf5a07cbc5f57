// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks. channels is the expected number
// of tracked channels, used to size the file descriptor requirement.
func RunAll(channels int, streamlinkPath, recordingsDir, logsDir string) *Result {
	result := &Result{
		Checks: make([]Check, 0, 4),
		Passed: true,
	}

	slCheck := checkStreamlink(streamlinkPath)
	result.Checks = append(result.Checks, slCheck)
	if !slCheck.Passed {
		result.Passed = false
	}

	recCheck := checkWritableDir("recordings_dir", recordingsDir)
	result.Checks = append(result.Checks, recCheck)
	if !recCheck.Passed {
		result.Passed = false
	}

	logCheck := checkWritableDir("logs_dir", logsDir)
	result.Checks = append(result.Checks, logCheck)
	if !logCheck.Passed {
		result.Passed = false
	}

	fdCheck := checkFileDescriptors(channels)
	result.Checks = append(result.Checks, fdCheck)
	if !fdCheck.Passed {
		result.Passed = false
	}

	return result
}

// checkStreamlink verifies streamlink is available and working.
func checkStreamlink(path string) Check {
	cmd := exec.Command(path, "--version")
	output, err := cmd.Output()

	if err != nil {
		return Check{
			Name:    "streamlink",
			Passed:  false,
			Message: fmt.Sprintf("not found at %s: %v", path, err),
		}
	}

	// "streamlink 6.5.0"
	version := "unknown"
	fields := strings.Fields(strings.SplitN(string(output), "\n", 2)[0])
	if len(fields) >= 2 {
		version = fields[1]
	}

	return Check{
		Name:    "streamlink",
		Passed:  true,
		Message: fmt.Sprintf("found at %s (version %s)", path, version),
	}
}

// checkWritableDir verifies the directory exists (creating it if needed)
// and accepts writes.
func checkWritableDir(name, dir string) Check {
	if dir == "" {
		return Check{Name: name, Passed: false, Message: "not configured"}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("cannot create %s: %v", dir, err),
		}
	}

	probe := filepath.Join(dir, ".preflight")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("not writable: %v", err),
		}
	}
	os.Remove(probe)

	return Check{
		Name:    name,
		Passed:  true,
		Message: fmt.Sprintf("writable (%s)", dir),
	}
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(channels int) Check {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: "unable to check (restricted)",
		}
	}

	// Each capture holds an artifact, a log file and streamlink's
	// sockets. Plus daemon overhead (HTTP servers, snapshot writes).
	required := channels*20 + 100
	actual := int(limit.Cur)

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d channels)", actual, required, channels),
	}
}

// PrintResults prints the preflight check results to stdout.
func PrintResults(result *Result) {
	fmt.Println("Preflight checks:")
	for _, check := range result.Checks {
		fmt.Println(check.String())
		if !check.Passed {
			fmt.Printf("    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Println()
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "streamlink":
		return "install streamlink (pip install streamlink / apt install streamlink)"
	case "recordings_dir", "logs_dir":
		return "create the directory or point the daemon at a writable path"
	case "file_descriptors":
		return "ulimit -n 8192 (or edit /etc/security/limits.conf)"
	default:
		return "see documentation"
	}
}
