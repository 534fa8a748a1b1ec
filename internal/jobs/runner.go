package jobs

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"sync"
)

// Sink receives a task's output. Both execution strategies speak this one
// contract; *Job satisfies it directly and callers may decorate it.
type Sink interface {
	LogLine(line string)
	Complete(success bool)
}

// LogFunc formats and emits one log line.
type LogFunc func(format string, args ...any)

// TaskFunc is an in-process unit of work. It reports progress through logf
// and signals the outcome through its return value.
type TaskFunc func(ctx context.Context, logf LogFunc) error

// StartFunc runs fn detached from the caller: it returns immediately and the
// task's completion or failure is captured only through the sink. A returned
// error or a panic is appended as an ERROR: line and fails the job.
func StartFunc(ctx context.Context, sink Sink, fn TaskFunc) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				sink.LogLine(fmt.Sprintf("ERROR: panic: %v", r))
				sink.Complete(false)
			}
		}()

		logf := func(format string, args ...any) {
			sink.LogLine(fmt.Sprintf(format, args...))
		}

		if err := fn(ctx, logf); err != nil {
			sink.LogLine("ERROR: " + err.Error())
			sink.Complete(false)
			return
		}
		sink.Complete(true)
	}()
}

// StartCommand runs an isolated worker process detached from the caller.
// Every line the worker writes is forwarded to the sink tagged with its
// origin stream; exit code zero finishes the job, anything else fails it.
func StartCommand(ctx context.Context, sink Sink, name string, args ...string) {
	go func() {
		cmd := exec.CommandContext(ctx, name, args...)

		stdout, err := cmd.StdoutPipe()
		if err != nil {
			sink.LogLine("ERROR: " + err.Error())
			sink.Complete(false)
			return
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			sink.LogLine("ERROR: " + err.Error())
			sink.Complete(false)
			return
		}

		if err := cmd.Start(); err != nil {
			sink.LogLine("ERROR: starting worker: " + err.Error())
			sink.Complete(false)
			return
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			scanner := bufio.NewScanner(stdout)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				if line := scanner.Text(); line != "" {
					sink.LogLine("[OUT] " + line)
				}
			}
		}()
		go func() {
			defer wg.Done()
			scanner := bufio.NewScanner(stderr)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				if line := scanner.Text(); line != "" {
					sink.LogLine("[ERR] " + line)
				}
			}
		}()
		wg.Wait()

		if err := cmd.Wait(); err != nil {
			sink.LogLine("ERROR: " + err.Error())
			sink.Complete(false)
			return
		}
		sink.Complete(true)
	}()
}
