package halfwit

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOracle(t *testing.T, cfg OracleConfig, candidates []Candidate) *processOracle {
	t.Helper()

	if cfg.Shell == "" {
		cfg.Shell = "sh"
	}
	if cfg.SkipExitStatus == 0 {
		cfg.SkipExitStatus = 125
	}
	if cfg.EnabledEnv == "" {
		cfg.EnabledEnv = "HALFWIT_ENABLED"
	}
	if cfg.DisabledEnv == "" {
		cfg.DisabledEnv = "HALFWIT_DISABLED"
	}

	universe, err := NewUniverse(candidates)
	require.Nil(t, err, "Failed to create universe")

	log := logrus.New()
	log.SetOutput(io.Discard)
	return newProcessOracle(cfg, universe, log.WithField("test", t.Name()))
}

func TestExitStatusMapping(t *testing.T) {
	values := []struct {
		command string
		verdict Verdict
	}{
		{"exit 0", VerdictDoesNotReproduce},
		{"exit 1", VerdictReproduces},
		{"exit 7", VerdictReproduces},
		{"exit 125", VerdictInconclusive},
	}

	for _, v := range values {
		oracle := testOracle(t, OracleConfig{Command: v.command}, []Candidate{"a"})

		verdict, err := oracle.Judge(context.Background(), Mask{})
		assert.Nil(t, err, "Judging %q returned an error", v.command)
		assert.Equalf(t, v.verdict, verdict, "Wrong verdict for %q", v.command)
	}
}

func TestCustomSkipExitStatus(t *testing.T) {
	oracle := testOracle(t, OracleConfig{Command: "exit 42", SkipExitStatus: 42}, []Candidate{"a"})

	verdict, err := oracle.Judge(context.Background(), Mask{})
	assert.Nil(t, err)
	assert.Equal(t, VerdictInconclusive, verdict, "Custom skip status was not honored")
}

func TestAdapterEnvironment(t *testing.T) {
	universe := []Candidate{"a", "b", "c"}
	oracle := testOracle(t, OracleConfig{
		Command: `test "$ENABLED" = "a
c" && test "$DISABLED" = "b"`,
		EnabledEnv:  "ENABLED",
		DisabledEnv: "DISABLED",
	}, universe)

	u, err := NewUniverse(universe)
	require.Nil(t, err)
	mask, err := NewMask(u, []Candidate{"a", "c"})
	require.Nil(t, err)

	verdict, err := oracle.Judge(context.Background(), mask)
	assert.Nil(t, err)
	assert.Equal(t, VerdictDoesNotReproduce, verdict, "Adapter did not see the expected candidate lists")
}

func TestAdapterTimeout(t *testing.T) {
	oracle := testOracle(t, OracleConfig{
		Command: "sleep 60",
		Timeout: 100 * time.Millisecond,
	}, []Candidate{"a"})

	start := time.Now()
	verdict, err := oracle.Judge(context.Background(), Mask{})
	assert.Nil(t, err)
	assert.Equal(t, VerdictInconclusive, verdict, "Timeout should be inconclusive by default")
	assert.Less(t, time.Since(start), 5*time.Second, "Timed-out adapter was not killed promptly")
}

func TestAdapterTimeoutReapsDescendants(t *testing.T) {
	// The adapter spawns a child that would outlive it; the process group
	// kill must take both down without Judge hanging on the grandchild.
	oracle := testOracle(t, OracleConfig{
		Command: "sleep 60 & sleep 60",
		Timeout: 100 * time.Millisecond,
	}, []Candidate{"a"})

	start := time.Now()
	verdict, err := oracle.Judge(context.Background(), Mask{})
	assert.Nil(t, err)
	assert.Equal(t, VerdictInconclusive, verdict)
	assert.Less(t, time.Since(start), 5*time.Second, "Descendants kept the adapter wait alive")
}

func TestAdapterTimeoutReproduces(t *testing.T) {
	oracle := testOracle(t, OracleConfig{
		Command:           "sleep 60",
		Timeout:           100 * time.Millisecond,
		TimeoutReproduces: true,
	}, []Candidate{"a"})

	verdict, err := oracle.Judge(context.Background(), Mask{})
	assert.Nil(t, err)
	assert.Equal(t, VerdictReproduces, verdict, "Timeout should reproduce in hang-detection mode")
}

func TestAdapterCancellation(t *testing.T) {
	oracle := testOracle(t, OracleConfig{Command: "sleep 60"}, []Candidate{"a"})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := oracle.Judge(ctx, Mask{})
	assert.NotNil(t, err, "Canceled judging should return the context error")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second, "Canceled adapter was not killed promptly")
}

func TestAdapterLaunchFailure(t *testing.T) {
	oracle := testOracle(t, OracleConfig{
		Command: "exit 0",
		Shell:   "/this/shell/does/not/exist",
	}, []Candidate{"a"})

	_, err := oracle.Judge(context.Background(), Mask{})
	assert.NotNil(t, err, "Launching a nonexistent shell should fail")
}
