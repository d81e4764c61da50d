package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// managePIDFile writes the process id to path, optionally holding an
// exclusive lock so a second instance fails fast. The returned cleanup
// releases the lock and removes the file.
func managePIDFile(path string, lock bool) (func(), error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if errors.Is(err, os.ErrExist) {
		if lock {
			if err := checkStalePID(path); err != nil {
				return nil, err
			}
		}
		file, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot open PID file: %w", err)
	}

	if lock {
		if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
			file.Close()
			if errors.Is(err, syscall.EWOULDBLOCK) {
				return nil, errors.New("cannot acquire lock: another instance is running")
			}
			return nil, fmt.Errorf("lock failed: %w", err)
		}
	}

	fail := func(what string, err error) (func(), error) {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("cannot %s PID file: %w", what, err)
	}
	if _, err := fmt.Fprintf(file, "%d\n", os.Getpid()); err != nil {
		return fail("write", err)
	}
	if err := file.Sync(); err != nil {
		return fail("sync", err)
	}

	return func() {
		if lock {
			syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		}
		file.Close()
		os.Remove(path)
	}, nil
}

// checkStalePID allows reuse of a PID file only when its process is gone
func checkStalePID(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read existing PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		// Corrupted, take it over
		return nil
	}

	// FindProcess never fails on Unix; signal 0 probes for existence
	proc, _ := os.FindProcess(pid)
	err = proc.Signal(syscall.Signal(0))
	switch {
	case err == nil:
		return fmt.Errorf("process %d is already running with PID file %s", pid, path)
	case errors.Is(err, os.ErrProcessDone), errors.Is(err, syscall.ESRCH):
		return nil
	default:
		return fmt.Errorf("process %d exists but cannot verify ownership: %v", pid, err)
	}
}
