package cpython

import (
	"bufio"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

//go:embed worker.py
var workerSource string

const maxReplyBytes = 16 << 20

type request struct {
	Op         string         `json:"op"`
	File       string         `json:"file,omitempty"`
	Source     string         `json:"source,omitempty"`
	Argv       []string       `json:"argv,omitempty"`
	Paths      []string       `json:"paths,omitempty"`
	Persistent bool           `json:"persistent,omitempty"`
	Scope      string         `json:"scope,omitempty"`
	Builtins   map[string]any `json:"builtins,omitempty"`
}

type reply struct {
	Status  string            `json:"status"`
	Code    int               `json:"code"`
	Trace   string            `json:"trace"`
	Output  string            `json:"output"`
	Results map[string]string `json:"results"`
	Version string            `json:"version"`
}

// worker is a warm interpreter process speaking one JSON document per line.
type worker struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	replies *bufio.Scanner
	version string
}

func spawn(python string) (*worker, error) {
	cmd := exec.Command(python, "-u", "-c", workerSource)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxReplyBytes)
	w := &worker{cmd: cmd, stdin: stdin, replies: scanner}

	hello, err := w.read()
	if err != nil {
		w.kill()
		return nil, fmt.Errorf("worker did not start: %w", err)
	}
	w.version = hello.Version
	return w, nil
}

func (w *worker) call(req request) (reply, error) {
	line, err := json.Marshal(req)
	if err != nil {
		return reply{}, err
	}
	if _, err := w.stdin.Write(append(line, '\n')); err != nil {
		return reply{}, fmt.Errorf("write to worker: %w", err)
	}
	return w.read()
}

func (w *worker) read() (reply, error) {
	if !w.replies.Scan() {
		if err := w.replies.Err(); err != nil {
			return reply{}, err
		}
		return reply{}, io.ErrUnexpectedEOF
	}
	var r reply
	if err := json.Unmarshal(w.replies.Bytes(), &r); err != nil {
		return reply{}, fmt.Errorf("decode worker reply: %w", err)
	}
	return r, nil
}

// stop asks the worker to quit and kills it if it does not exit in time.
func (w *worker) stop(grace time.Duration) error {
	_, quitErr := w.call(request{Op: "quit"})
	_ = w.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- w.cmd.Wait() }()
	select {
	case err := <-done:
		return errors.Join(quitErr, err)
	case <-time.After(grace):
		_ = w.cmd.Process.Kill()
		<-done
		return errors.Join(quitErr, errors.New("worker killed after grace period"))
	}
}

func (w *worker) kill() {
	_ = w.stdin.Close()
	if w.cmd.Process != nil {
		_ = w.cmd.Process.Kill()
	}
	_ = w.cmd.Wait()
}
