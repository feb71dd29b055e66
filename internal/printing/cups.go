package printing

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/tendant/simple-photo-pipeline/pkg/pipeline"
)

// commandFunc runs a program and returns its stdout
type commandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// CUPSSpooler talks to CUPS through the lp and lpstat command line tools
type CUPSSpooler struct {
	run commandFunc
}

// NewCUPSSpooler creates a spooler using the system's lp/lpstat
func NewCUPSSpooler() *CUPSSpooler {
	return &CUPSSpooler{run: runCommand}
}

// Available reports whether the lp tools are installed
func (s *CUPSSpooler) Available() bool {
	_, err := exec.LookPath("lp")
	return err == nil
}

// Destinations implements Spooler
func (s *CUPSSpooler) Destinations(ctx context.Context) ([]string, error) {
	out, err := s.run(ctx, "lpstat", "-e")
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "no destinations added") {
			return []string{}, nil
		}
		return nil, err
	}

	dests := []string{}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if name := strings.TrimSpace(scanner.Text()); name != "" {
			dests = append(dests, name)
		}
	}
	return dests, scanner.Err()
}

// DefaultDestination implements Spooler
func (s *CUPSSpooler) DefaultDestination(ctx context.Context) (string, error) {
	out, err := s.run(ctx, "lpstat", "-d")
	if err != nil {
		return "", err
	}
	line := strings.TrimSpace(string(out))
	if strings.HasPrefix(strings.ToLower(line), "no system default") {
		return "", ErrNoDefault
	}
	if i := strings.LastIndex(line, ":"); i >= 0 {
		return strings.TrimSpace(line[i+1:]), nil
	}
	return "", fmt.Errorf("unexpected lpstat output: %q", line)
}

// Submit implements Spooler
func (s *CUPSSpooler) Submit(ctx context.Context, job pipeline.PrintJob) (string, error) {
	args := []string{"-n", strconv.Itoa(job.Copies)}
	if job.Destination != "" {
		args = append(args, "-d", job.Destination)
	}
	args = append(args, "--", job.Path)

	out, err := s.run(ctx, "lp", args...)
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "does not exist") || strings.Contains(msg, "unknown destination") {
			return "", newError(NoSuchDestination, job.Destination, err)
		}
		return "", newError(SpoolerUnavailable, job.Destination, err)
	}
	return parseRequestID(string(out)), nil
}

// parseRequestID extracts "Kiosk-12" from "request id is Kiosk-12 (1 file(s))"
func parseRequestID(out string) string {
	const marker = "request id is "
	i := strings.Index(out, marker)
	if i < 0 {
		return ""
	}
	fields := strings.Fields(out[i+len(marker):])
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%s not installed: %w", name, err)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %s: %w", name, msg, err)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}
