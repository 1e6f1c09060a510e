package scaling

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/google/shlex"
	"gopkg.in/yaml.v3"
)

// Type selects how the problem size follows the worker count.
type Type string

const (
	// Strong keeps the problem size fixed.
	Strong Type = "strong-scaling"
	// Weak multiplies the problem size by the worker count.
	Weak Type = "weak-scaling"
)

// Mode selects which worker count varies.
type Mode string

const (
	ModeMPI    Mode = "mpi"
	ModeOpenMP Mode = "openmp"
)

// Sweep describes one scaling experiment.
type Sweep struct {
	Type         Type     `yaml:"type" json:"type"`
	Mode         Mode     `yaml:"mode" json:"mode"`
	NTasks       []int    `yaml:"ntasks" json:"ntasks"`
	NThreads     []int    `yaml:"nthreads" json:"nthreads"`
	ProblemSizes []int    `yaml:"problem_sizes,omitempty" json:"problem_sizes,omitempty"`
	Program      string   `yaml:"program" json:"program"`
	Args         []string `yaml:"args,omitempty" json:"args,omitempty"`
	// MPIExec is the launcher command line. Empty means "<this binary> mpirun".
	MPIExec string `yaml:"mpiexec,omitempty" json:"mpiexec,omitempty"`
}

// DefaultSweep returns a sweep of the given type with the default worker
// lists: one rank and two threads.
func DefaultSweep(t Type) Sweep {
	return Sweep{
		Type:     t,
		Mode:     ModeMPI,
		NTasks:   []int{1},
		NThreads: []int{2},
	}
}

// LoadSweep reads a YAML sweep file. Fields missing from the file keep the
// values of base.
func LoadSweep(path string, base Sweep) (Sweep, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read sweep %s: %w", path, err)
	}
	s, err := ParseSweep(data, base)
	if err != nil {
		return base, fmt.Errorf("sweep %s: %w", path, err)
	}
	return s, nil
}

// ParseSweep decodes a YAML sweep over base and validates the result.
func ParseSweep(data []byte, base Sweep) (Sweep, error) {
	s := base
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return base, fmt.Errorf("parse: %w", err)
	}
	if err := s.Validate(); err != nil {
		return base, err
	}
	return s, nil
}

//go:embed schema.cue
var schemaCUE string

// Validate checks s against the sweep schema.
func (s Sweep) Validate() error {
	ctx := cuecontext.New()
	def := ctx.CompileString(schemaCUE, cue.Filename("schema.cue")).LookupPath(cue.ParsePath("#Sweep"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("sweep schema: %w", err)
	}
	v := def.Unify(ctx.Encode(s))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid sweep: %w", err)
	}
	if _, err := shlex.Split(s.Program); err != nil {
		return fmt.Errorf("invalid sweep: program: %w", err)
	}
	if _, err := shlex.Split(s.MPIExec); err != nil {
		return fmt.Errorf("invalid sweep: mpiexec: %w", err)
	}
	return nil
}

// workers returns the varying worker counts and the fixed one.
func (s Sweep) workers() (varying []int, fixed int) {
	if s.Mode == ModeOpenMP {
		return s.NThreads, s.NTasks[0]
	}
	return s.NTasks, s.NThreads[0]
}

// sizes returns the base problem sizes. A sweep without sizes runs the
// program without a size argument once, recorded as size 0.
func (s Sweep) sizes() []int {
	if len(s.ProblemSizes) == 0 {
		return []int{0}
	}
	return s.ProblemSizes
}

// Tag names the timings of one base problem size.
func (s Sweep) Tag(size int) string {
	_, fixed := s.workers()
	return fmt.Sprintf("%s-%d-%d", s.Mode, fixed, size)
}

// Job is one timed launch of the program.
type Job struct {
	Tag     string
	Workers int
	Size    int // problem size passed to the program, 0 for none
	Ranks   int
	Threads int
	Argv    []string
}

// Env returns the environment additions of the job.
func (j Job) Env() []string {
	t := strconv.Itoa(j.Threads)
	return []string{"OMP_NUM_THREADS=" + t, "PARAPROF_NUM_THREADS=" + t}
}

// Plan expands s into jobs, grouped by tag in problem size order. The
// program and launcher command lines are split into words with shell
// quoting rules; mpiexec is the launcher argv used when s.MPIExec is empty.
func (s Sweep) Plan(mpiexec []string) ([]Job, error) {
	launcher := mpiexec
	if s.MPIExec != "" {
		var err error
		if launcher, err = shlex.Split(s.MPIExec); err != nil {
			return nil, fmt.Errorf("mpiexec: %w", err)
		}
	}
	program, err := shlex.Split(s.Program)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	varying, _ := s.workers()
	var jobs []Job
	for _, base := range s.sizes() {
		tag := s.Tag(base)
		for _, w := range varying {
			j := Job{Tag: tag, Workers: w, Size: base, Ranks: s.NTasks[0], Threads: s.NThreads[0]}
			if s.Mode == ModeOpenMP {
				j.Threads = w
			} else {
				j.Ranks = w
			}
			if s.Type == Weak {
				j.Size = base * w
			}
			argv := append([]string(nil), launcher...)
			argv = append(argv, "-n", strconv.Itoa(j.Ranks))
			argv = append(argv, program...)
			if j.Size > 0 {
				argv = append(argv, strconv.Itoa(j.Size))
			}
			j.Argv = append(argv, s.Args...)
			jobs = append(jobs, j)
		}
	}
	return jobs, nil
}
