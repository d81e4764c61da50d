package engine

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// Process is a running engine that accepts protocol commands
type Process interface {
	Send(cmd string) error
	Close() error
}

// Launcher starts an engine process. onLine is called for every output line
// and onExit once when the output stream ends; both run on the reader
// goroutine.
type Launcher func(onLine func(string), onExit func(error)) (Process, error)

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	mu     sync.Mutex
	exited chan struct{}
}

// ExecLauncher runs the engine binary at path over stdin/stdout
func ExecLauncher(path string) Launcher {
	return func(onLine func(string), onExit func(error)) (Process, error) {
		cmd := exec.Command(path)

		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, err
		}

		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, err
		}

		if err = cmd.Start(); err != nil {
			return nil, fmt.Errorf("failed to start engine: %w", err)
		}

		p := &execProcess{
			cmd:    cmd,
			stdin:  stdin,
			exited: make(chan struct{}),
		}

		go func() {
			scanner := bufio.NewScanner(stdout)
			for scanner.Scan() {
				onLine(scanner.Text())
			}
			err := cmd.Wait()
			close(p.exited)
			onExit(err)
		}()

		return p, nil
	}
}

func (p *execProcess) Send(cmd string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintln(p.stdin, cmd)
	return err
}

func (p *execProcess) Close() error {
	_ = p.Send("quit")

	select {
	case <-p.exited:
		return nil
	case <-time.After(time.Second):
		// Force kill if doesn't exit gracefully
		return p.cmd.Process.Kill()
	}
}
