package scaling

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ExecFunc runs one job to completion.
type ExecFunc func(ctx context.Context, job Job) error

// Runner executes the jobs of a sweep and stores their timings.
type Runner struct {
	Store *Store
	// MPIExec is the launcher argv for sweeps that do not name one.
	MPIExec []string
	Stdout  io.Writer
	Stderr  io.Writer
	Log     *slog.Logger
	// Exec runs a job; nil runs it as a child process.
	Exec ExecFunc
}

// JobError reports a launch that did not succeed.
type JobError struct {
	Job      Job
	ExitCode int
	Err      error
}

func (e *JobError) Error() string {
	if e.ExitCode > 0 {
		return fmt.Sprintf("%s exited with code %d", strings.Join(e.Job.Argv, " "), e.ExitCode)
	}
	return fmt.Sprintf("%s: %v", strings.Join(e.Job.Argv, " "), e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// Run executes every job of s and saves each tag once all of its jobs have
// finished. A failing job stops the sweep; tags completed before it stay
// saved. Run returns the saved results.
func (r *Runner) Run(ctx context.Context, s Sweep) ([]TagResult, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	log := r.Log
	if log == nil {
		log = slog.Default()
	}
	launch := r.Exec
	if launch == nil {
		launch = r.execProcess
	}

	id, err := r.Store.BeginSweep(ctx, s)
	if err != nil {
		return nil, err
	}
	log = log.With("sweep", id, "type", s.Type)

	var (
		saved []TagResult
		cur   *TagResult
	)
	flush := func() error {
		if cur == nil {
			return nil
		}
		if err := r.Store.SaveTag(ctx, id, *cur); err != nil {
			return err
		}
		log.Info("saved", "tag", cur.Tag, "runs", len(cur.Measurements))
		saved = append(saved, *cur)
		cur = nil
		return nil
	}

	jobs, err := s.Plan(r.MPIExec)
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		if cur != nil && cur.Tag != job.Tag {
			if err := flush(); err != nil {
				return saved, err
			}
		}
		if cur == nil {
			cur = &TagResult{Type: s.Type, Tag: job.Tag}
		}

		log.Info("running", "cmd", strings.Join(job.Argv, " "), "threads", job.Threads)
		start := time.Now()
		if err := launch(ctx, job); err != nil {
			return saved, err
		}
		elapsed := time.Since(start).Seconds()
		log.Info("done", "tag", job.Tag, "workers", job.Workers, "seconds", elapsed)
		cur.Measurements = append(cur.Measurements, Measurement{Workers: job.Workers, Size: job.Size, Seconds: elapsed})
	}
	if err := flush(); err != nil {
		return saved, err
	}
	return saved, nil
}

func (r *Runner) execProcess(ctx context.Context, job Job) error {
	if len(job.Argv) == 0 {
		return &JobError{Job: job, Err: errors.New("empty command")}
	}
	cmd := exec.CommandContext(ctx, job.Argv[0], job.Argv[1:]...)
	cmd.Env = append(os.Environ(), job.Env()...)
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
			return &JobError{Job: job, ExitCode: exitErr.ExitCode(), Err: err}
		}
		return &JobError{Job: job, Err: err}
	}
	return nil
}
