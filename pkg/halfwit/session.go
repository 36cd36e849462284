package halfwit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sync"
	"time"

	"github.com/creasty/defaults"
	"github.com/dchest/uniuri"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"gopkg.in/yaml.v3"
)

type sessionYaml struct {
	Command string `yaml:"command"`
	Shell   string `yaml:"shell" default:"sh"`
	Dir     string `yaml:"dir"`

	Candidates []string `yaml:"candidates"`

	Timeout           time.Duration `yaml:"timeout"`
	SkipExitStatus    int           `yaml:"skipExitStatus" default:"125"`
	TimeoutReproduces bool          `yaml:"timeoutReproduces"`

	Retries        int  `yaml:"retries" default:"2"`
	MaxGranularity int  `yaml:"maxGranularity"`
	TrialBudget    int  `yaml:"trialBudget"`
	SkipBaseline   bool `yaml:"skipBaseline"`

	EnabledEnv  string `yaml:"enabledEnv" default:"HALFWIT_ENABLED"`
	DisabledEnv string `yaml:"disabledEnv" default:"HALFWIT_DISABLED"`

	WorkDir string `yaml:"workDir" default:".halfwit"`
}

// GetSessionFromConfig reads in a session config in yaml format from a reader
// and initializes the corresponding session struct.
func GetSessionFromConfig(r io.Reader) (*Session, error) {
	var config sessionYaml

	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&config); err != nil {
		return nil, err
	}
	if err := defaults.Set(&config); err != nil {
		return nil, err
	}

	session := Session{
		Command: config.Command,
		Shell:   config.Shell,
		Dir:     config.Dir,

		Timeout:           config.Timeout * time.Millisecond,
		SkipExitStatus:    config.SkipExitStatus,
		TimeoutReproduces: config.TimeoutReproduces,

		Retries:        config.Retries,
		MaxGranularity: config.MaxGranularity,
		TrialBudget:    config.TrialBudget,
		SkipBaseline:   config.SkipBaseline,

		EnabledEnv:  config.EnabledEnv,
		DisabledEnv: config.DisabledEnv,

		WorkDir: config.WorkDir,
	}
	for _, c := range config.Candidates {
		session.Candidates = append(session.Candidates, Candidate(c))
	}

	return &session, nil
}

// A Session drives one bisection: it repeatedly asks the engine for the next
// mask, applies it through the toggler, has the oracle judge it and records
// the trial in the journal, until the search converges or stalls.
//
// Trials within a session are strictly serialized: toggling is a shared
// external side effect, so concurrent trials over the same universe would
// corrupt each other's observations. Independent sessions over disjoint
// universes may run concurrently, see [RunSessions].
type Session struct {
	ID string // The session id. Auto-generated if left empty

	Candidates []Candidate // The universe of candidates. May be left empty when resuming

	Command string // The adapter command judging the behavior, run through the shell
	Shell   string // The shell to run the adapter with
	Dir     string // The adapter's working directory

	Timeout           time.Duration // How long one adapter run may take, or 0 for no deadline
	SkipExitStatus    int           // The adapter exit status meaning "cannot determine"
	TimeoutReproduces bool          // Whether a timed-out adapter counts as reproducing

	Retries        int  // How many times an inconclusive mask is retried
	MaxGranularity int  // The partition count ceiling, or 0 for no ceiling
	TrialBudget    int  // The maximum number of trials, or 0 for no limit
	SkipBaseline   bool // Whether to skip verifying the empty mask does not reproduce

	EnabledEnv  string // Name of the env var holding the enabled candidates
	DisabledEnv string // Name of the env var holding the disabled candidates

	WorkDir string // Where the journal and the file stash live

	Oracle  Oracle  // The oracle to judge masks with. Defaults to the adapter process oracle
	Toggler Toggler // The toggler applying masks. Defaults to a file toggler over the candidates

	Log *logrus.Logger // The log to which information gets printed to

	universe Universe
	engine   *searchEngine
	journal  *Journal
	log      *logrus.Entry

	mu     sync.Mutex
	status Status
}

// A Status is a point-in-time summary of a session's search state, derived
// from the trial history.
type Status struct {
	SessionID    string
	Trials       int
	FrontierSize int
	Culprits     []CulpritSet
	State        string
}

// A Report is the final outcome of a session run. Stall is nil if the search
// converged, otherwise it names the mask the search halted on.
type Report struct {
	SessionID string
	Trials    int
	Culprits  []CulpritSet
	Stall     *Stall
}

func (s *Session) journalPath() string {
	return filepath.Join(s.WorkDir, "sessions", s.ID+".jsonl")
}

func (s *Session) stashDir() string {
	return filepath.Join(s.WorkDir, "stash")
}

// setDefaults fills in the zero values of manually populated sessions.
func (s *Session) setDefaults() {
	if s.Shell == "" {
		s.Shell = "sh"
	}
	if s.SkipExitStatus == 0 {
		s.SkipExitStatus = 125
	}
	if s.EnabledEnv == "" {
		s.EnabledEnv = "HALFWIT_ENABLED"
	}
	if s.DisabledEnv == "" {
		s.DisabledEnv = "HALFWIT_DISABLED"
	}
	if s.WorkDir == "" {
		s.WorkDir = ".halfwit"
	}
	if s.Log == nil {
		// Mute logger
		s.Log = logrus.New()
		s.Log.SetOutput(io.Discard)
	}
}

// setup validates the configuration, opens or creates the journal and replays
// any recorded trials into a fresh engine.
func (s *Session) setup() error {
	s.setDefaults()
	if s.Command == "" && s.Oracle == nil {
		return fmt.Errorf("session has neither an adapter command nor an oracle")
	}

	if s.ID == "" {
		s.ID = uniuri.New()
	}
	s.log = s.Log.WithField("session-id", s.ID)

	cfg := SearchConfig{
		Retries:        s.Retries,
		MaxGranularity: s.MaxGranularity,
		TrialBudget:    s.TrialBudget,
		CheckBaseline:  !s.SkipBaseline,
	}

	var trials []Trial
	journal, trials, err := OpenJournal(s.journalPath())
	switch {
	case err == nil:
		// Resuming: the journal header is the authoritative universe.
		s.log.Infof("Resuming session from journal with %d recorded trials", len(trials))
		if len(s.Candidates) > 0 {
			given, uniErr := NewUniverse(s.Candidates)
			if uniErr != nil {
				return uniErr
			}
			if !given.All().Equal(journal.Universe.All()) {
				journal.Close()
				return fmt.Errorf("session %s was started over a different universe; changing candidates requires a new session", s.ID)
			}
		}
		s.universe = journal.Universe
	case errors.Is(err, ErrJournalCorrupt):
		return err
	default:
		s.universe, err = NewUniverse(s.Candidates)
		if err != nil {
			return err
		}
		journal, err = CreateJournal(s.journalPath(), s.ID, s.universe, cfg)
		if err != nil {
			return err
		}
	}
	s.journal = journal

	s.engine = newSearchEngine(s.universe, cfg)
	for _, t := range trials {
		if err := s.engine.observe(t); err != nil {
			return errors.Join(ErrJournalCorrupt, err)
		}
	}

	if s.Toggler == nil {
		s.Toggler, err = NewFileToggler(s.universe, s.stashDir(), s.log)
		if err != nil {
			return err
		}
	}
	if s.Oracle == nil {
		s.Oracle = newProcessOracle(OracleConfig{
			Command:           s.Command,
			Shell:             s.Shell,
			Dir:               s.Dir,
			Timeout:           s.Timeout,
			SkipExitStatus:    s.SkipExitStatus,
			TimeoutReproduces: s.TimeoutReproduces,
			EnabledEnv:        s.EnabledEnv,
			DisabledEnv:       s.DisabledEnv,
		}, s.universe, s.log)
	}
	return nil
}

// Run the session until it converges, stalls or the context is canceled.
// An existing journal for the session id is picked up and resumed; otherwise
// a new journal is created.
//
// Stalls are non-fatal: they are returned in the report, the journal stays
// intact and the session can be resumed after adjusting the configuration.
// On return the toggler is invoked once more with the baseline mask, so the
// candidates are left in their original state.
func (s *Session) Run(ctx context.Context) (*Report, error) {
	if err := s.setup(); err != nil {
		return nil, err
	}
	defer s.journal.Close()
	defer func() {
		if err := s.Toggler.Restore(); err != nil {
			s.log.Warnf("Failed to restore baseline state - %v", err)
		}
	}()

	for {
		// An in-flight trial always runs to completion and gets journaled;
		// cancellation is only honored between trials.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		act := s.engine.nextAction()
		s.updateStatus(act)

		switch act.kind {
		case actionDone:
			s.log.Infof("Bisection done after %d trials, found %d culprit set(s)", s.engine.observed, len(act.culprits))
			return &Report{
				SessionID: s.ID,
				Trials:    s.engine.observed,
				Culprits:  act.culprits,
			}, nil
		case actionStalled:
			s.log.Warnf("Bisection stalled after %d trials: %s", s.engine.observed, act.stall)
			stall := act.stall
			return &Report{
				SessionID: s.ID,
				Trials:    s.engine.observed,
				Culprits:  act.culprits,
				Stall:     &stall,
			}, nil
		}

		seq := s.engine.lastSeq + 1
		s.log.Infof("Trial %d: testing %d of %d candidates", seq, act.mask.Len(), s.universe.Size())

		if err := s.Toggler.Toggle(act.mask); err != nil {
			return nil, errors.Join(fmt.Errorf("failed to apply mask for trial %d", seq), err)
		}

		start := time.Now()
		verdict, err := s.Oracle.Judge(ctx, act.mask)
		if err != nil {
			// Interrupted or failed trials are never journaled; the journal
			// only ever holds completed observations.
			return nil, errors.Join(fmt.Errorf("trial %d was not judged", seq), err)
		}
		trial := Trial{
			Seq:      seq,
			Mask:     act.mask,
			Verdict:  verdict,
			Duration: time.Since(start),
			Time:     time.Now(),
		}
		s.log.Infof("Trial %d: verdict %s after %v", seq, verdict, trial.Duration.Round(time.Millisecond))

		// Durable before any derived state updates.
		if err := s.journal.Append(trial); err != nil {
			return nil, errors.Join(fmt.Errorf("failed to journal trial %d", seq), err)
		}
		if err := s.engine.observe(trial); err != nil {
			return nil, err
		}
	}
}

func (s *Session) updateStatus(act action) {
	state := "running"
	switch act.kind {
	case actionDone:
		state = "done"
	case actionStalled:
		state = "stalled"
	}
	s.mu.Lock()
	s.status = Status{
		SessionID:    s.ID,
		Trials:       s.engine.observed,
		FrontierSize: s.engine.frontierSize,
		Culprits:     act.culprits,
		State:        state,
	}
	s.mu.Unlock()
}

// Status returns a snapshot of the session's current search state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.SessionID == "" {
		return Status{SessionID: s.ID, State: "idle"}
	}
	return s.status
}

// LoadSessionStatus replays the journal of the given session and summarizes
// its search state, without touching the toggler or oracle. The frontier is
// derived state, so this works on any consistent journal, including one of a
// crashed or running session. The replay evaluates the trials under the
// search configuration recorded in the journal header.
func LoadSessionStatus(workDir, id string) (Status, error) {
	session := Session{ID: id, WorkDir: workDir}
	session.setDefaults()
	journal, trials, err := OpenJournal(session.journalPath())
	if err != nil {
		return Status{}, err
	}
	defer journal.Close()

	engine := newSearchEngine(journal.Universe, journal.Search)
	for _, t := range trials {
		if err := engine.observe(t); err != nil {
			return Status{}, errors.Join(ErrJournalCorrupt, err)
		}
	}
	act := engine.nextAction()

	state := "running"
	switch act.kind {
	case actionDone:
		state = "done"
	case actionStalled:
		state = "stalled"
	}
	return Status{
		SessionID:    id,
		Trials:       engine.observed,
		FrontierSize: engine.frontierSize,
		Culprits:     act.culprits,
		State:        state,
	}, nil
}

// AbortSession restores the baseline state of an interrupted session's
// candidates from its file stash. The journal is left untouched, so the
// session stays resumable.
func AbortSession(workDir, id string, log *logrus.Logger) error {
	session := Session{ID: id, WorkDir: workDir, Log: log}
	session.setDefaults()
	journal, _, err := OpenJournal(session.journalPath())
	if err != nil {
		return err
	}
	journal.Close()

	toggler, err := NewFileToggler(journal.Universe, session.stashDir(), session.Log.WithField("session-id", id))
	if err != nil {
		return err
	}
	return toggler.Restore()
}

// RunSessions runs multiple independent sessions, at most maxConcurrent of
// them at once (or all at once if 0). The sessions must toggle disjoint
// targets; trials within each session remain strictly serialized.
func RunSessions(ctx context.Context, sessions []*Session, maxConcurrent uint) ([]*Report, error) {
	if maxConcurrent == 0 {
		maxConcurrent = math.MaxInt32
	}
	sem := semaphore.NewWeighted(int64(maxConcurrent))

	reports := make([]*Report, len(sessions))
	errs := make([]error, len(sessions))
	var wg sync.WaitGroup
	for i, session := range sessions {
		if err := sem.Acquire(ctx, 1); err != nil {
			errs[i] = err
			break
		}
		wg.Add(1)
		go func(i int, session *Session) {
			defer wg.Done()
			defer sem.Release(1)
			reports[i], errs[i] = session.Run(ctx)
		}(i, session)
	}
	wg.Wait()
	return reports, errors.Join(errs...)
}
