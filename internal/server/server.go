package server

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/dchest/uniuri"
	"github.com/sirupsen/logrus"
	"github.com/typecasto/halfwit/pkg/halfwit"
	"golang.org/x/sync/semaphore"
)

// A Manager owns the sessions started through the server: it launches them,
// caps how many run at once and hands out their status and reports.
type Manager struct {
	workDir string
	log     *logrus.Logger

	sem *semaphore.Weighted

	mu       sync.Mutex
	sessions map[string]*sessionHandle
}

type sessionHandle struct {
	session *halfwit.Session
	cancel  context.CancelFunc
	done    chan struct{}

	report *halfwit.Report
	err    error
}

// NewManager creates a manager running at most maxConcurrent sessions at
// once, or an unlimited amount if 0.
func NewManager(workDir string, maxConcurrent uint, log *logrus.Logger) *Manager {
	if maxConcurrent == 0 {
		maxConcurrent = math.MaxInt32
	}
	return &Manager{
		workDir:  workDir,
		log:      log,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		sessions: make(map[string]*sessionHandle),
	}
}

// Start launches the passed session and returns its id.
func (m *Manager) Start(session *halfwit.Session) (string, error) {
	if session.ID == "" {
		session.ID = uniuri.New()
	}
	if session.WorkDir == "" {
		session.WorkDir = m.workDir
	}
	session.Log = m.log

	ctx, cancel := context.WithCancel(context.Background())
	handle := &sessionHandle{
		session: session,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	m.mu.Lock()
	if _, exists := m.sessions[session.ID]; exists {
		m.mu.Unlock()
		cancel()
		return "", fmt.Errorf("session %s is already running", session.ID)
	}
	m.sessions[session.ID] = handle
	m.mu.Unlock()

	go func() {
		defer close(handle.done)
		if err := m.sem.Acquire(ctx, 1); err != nil {
			handle.err = err
			return
		}
		defer m.sem.Release(1)
		handle.report, handle.err = session.Run(ctx)
		if handle.err != nil {
			m.log.Warnf("Session %s failed - %v", session.ID, handle.err)
		}
	}()

	return session.ID, nil
}

// Status returns the search state of a managed session. Sessions not managed
// by this server are looked up on disk through their journal.
func (m *Manager) Status(id string) (halfwit.Status, error) {
	m.mu.Lock()
	handle, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		return handle.session.Status(), nil
	}
	return halfwit.LoadSessionStatus(m.workDir, id)
}

// Report returns the final report of a managed session, or false if the
// session is still running.
func (m *Manager) Report(id string) (*halfwit.Report, bool, error) {
	m.mu.Lock()
	handle, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, false, fmt.Errorf("no session with id %s", id)
	}
	select {
	case <-handle.done:
		return handle.report, true, handle.err
	default:
		return nil, false, nil
	}
}

// Abort cancels a managed session, waiting until its in-flight adapter
// process is reaped and its candidates are restored to their baseline state.
func (m *Manager) Abort(id string) error {
	m.mu.Lock()
	handle, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no session with id %s", id)
	}
	handle.cancel()
	<-handle.done
	return nil
}
