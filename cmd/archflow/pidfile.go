package main

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// pidfile records the PID of the running server so install can reach it.
type pidfile string

func (p pidfile) write() error {
	if err := os.MkdirAll(filepath.Dir(string(p)), 0o700); err != nil {
		return err
	}
	return os.WriteFile(string(p), []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func (p pidfile) remove() {
	_ = os.Remove(string(p))
}

// live returns the recorded process if it still exists.
func (p pidfile) live() (*os.Process, error) {
	data, err := os.ReadFile(string(p))
	if err != nil {
		return nil, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, errors.New("pidfile is corrupt")
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, err
	}
	// Signal 0 only probes for existence.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return nil, err
	}
	return proc, nil
}

// reload asks the running server to re-read its settings. It returns the
// signalled PID, or 0 when no server is running.
func (p pidfile) reload() int {
	proc, err := p.live()
	if err != nil {
		return 0
	}
	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return 0
	}
	return proc.Pid
}
