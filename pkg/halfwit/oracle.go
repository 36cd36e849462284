package halfwit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// An Oracle judges whether the observed behavior occurs for a given mask.
// Implementations must map whatever they observe into a Verdict; no exit
// codes or protocol details may leak past this boundary.
type Oracle interface {
	Judge(ctx context.Context, mask Mask) (Verdict, error)
}

// OracleFunc adapts a plain function to the Oracle interface.
type OracleFunc func(ctx context.Context, mask Mask) (Verdict, error)

func (f OracleFunc) Judge(ctx context.Context, mask Mask) (Verdict, error) {
	return f(ctx, mask)
}

// OracleConfig configures the external adapter process.
type OracleConfig struct {
	Command string // The adapter command, run through the shell
	Shell   string // The shell to run the command with
	Dir     string // The working directory of the adapter, or "" for the current one

	// How long the adapter may run before its process group is killed, or 0
	// for no deadline.
	Timeout time.Duration

	// The exit status reserved for "cannot determine", following the
	// git-bisect skip convention.
	SkipExitStatus int

	// Whether a timed-out adapter counts as reproducing, for hang-detection
	// use cases. Otherwise a timeout is inconclusive.
	TimeoutReproduces bool

	EnabledEnv  string // Name of the env var holding the enabled candidates
	DisabledEnv string // Name of the env var holding the disabled candidates
}

// processOracle spawns the adapter process for every trial and translates
// its exit status: zero means the behavior did not reproduce, the reserved
// skip status means inconclusive, anything else means it reproduced.
type processOracle struct {
	cfg      OracleConfig
	universe Universe
	log      *logrus.Entry
}

func newProcessOracle(cfg OracleConfig, universe Universe, log *logrus.Entry) *processOracle {
	return &processOracle{
		cfg:      cfg,
		universe: universe,
		log:      log,
	}
}

func (o *processOracle) Judge(ctx context.Context, mask Mask) (Verdict, error) {
	var disabled []string
	for _, c := range o.universe.Candidates() {
		if !mask.Contains(c) {
			disabled = append(disabled, string(c))
		}
	}

	cmd := exec.Command(o.cfg.Shell, "-c", o.cfg.Command)
	cmd.Dir = o.cfg.Dir
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("%s=%s", o.cfg.EnabledEnv, strings.Join(mask.Strings(), "\n")),
		fmt.Sprintf("%s=%s", o.cfg.DisabledEnv, strings.Join(disabled, "\n")),
	)
	// New process group, so a kill reaps the adapter's descendants too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return VerdictInconclusive, errors.Join(fmt.Errorf("failed to launch adapter %q", o.cfg.Command), err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var timeout <-chan time.Time
	if o.cfg.Timeout > 0 {
		timer := time.NewTimer(o.cfg.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case err := <-done:
		return o.verdictOf(err)
	case <-timeout:
		o.log.Warnf("Adapter exceeded timeout of %v, killing process group", o.cfg.Timeout)
		o.kill(cmd)
		<-done
		if o.cfg.TimeoutReproduces {
			return VerdictReproduces, nil
		}
		return VerdictInconclusive, nil
	case <-ctx.Done():
		o.kill(cmd)
		<-done
		return VerdictInconclusive, ctx.Err()
	}
}

func (o *processOracle) verdictOf(waitErr error) (Verdict, error) {
	if waitErr == nil {
		return VerdictDoesNotReproduce, nil
	}
	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		return VerdictInconclusive, errors.Join(fmt.Errorf("failed to wait for adapter %q", o.cfg.Command), waitErr)
	}
	status := exitErr.ExitCode()
	o.log.Debugf("Adapter exited with status %d", status)
	if status == o.cfg.SkipExitStatus {
		return VerdictInconclusive, nil
	}
	return VerdictReproduces, nil
}

// kill terminates the adapter's whole process group.
func (o *processOracle) kill(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		o.log.Warnf("Failed to kill adapter process group %d - %v", cmd.Process.Pid, err)
	}
}
