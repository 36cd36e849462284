package halfwit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/opencontainers/go-digest"
)

// ErrJournalCorrupt is returned when a journal fails its integrity check on
// load. Corrupt journals are never silently repaired; resuming the affected
// session requires manual intervention or a fresh session.
var ErrJournalCorrupt = errors.New("journal integrity check failed")

const journalVersion = 1

// The first line of every journal. It binds the journal to its session,
// universe and search configuration, so a resume can detect mismatched
// candidate sets and offline replays evaluate under the run's own knobs.
type journalHeader struct {
	Version  int          `json:"version"`
	Session  string       `json:"session"`
	Universe []string     `json:"universe"`
	Search   SearchConfig `json:"search"`
	Created  time.Time    `json:"created"`
	Digest   string       `json:"digest"`
}

// One trial per line. Every record's digest covers its own payload and the
// previous record's digest, forming a chain back to the header.
type journalRecord struct {
	Seq        int       `json:"seq"`
	Mask       []string  `json:"mask"`
	Verdict    string    `json:"verdict"`
	DurationMs int64     `json:"durationMs"`
	Time       time.Time `json:"time"`
	Digest     string    `json:"digest"`
}

// A Journal is the append-only, durable log of a session's trials. It is the
// sole persisted truth: session state is always reconstructed by replaying
// the full trial sequence, never from a snapshot.
type Journal struct {
	SessionID string
	Universe  Universe
	Search    SearchConfig

	path       string
	file       *os.File
	lastSeq    int
	lastDigest string
}

// chainDigest computes the digest of a record payload given its
// predecessor's digest.
func chainDigest(prev string, payload []byte) string {
	return digest.FromBytes(append([]byte(prev), payload...)).String()
}

// CreateJournal creates a new journal at path and writes its header. It
// fails if a journal already exists there.
func CreateJournal(path, sessionID string, universe Universe, cfg SearchConfig) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create journal at %s", path), err)
	}

	header := journalHeader{
		Version:  journalVersion,
		Session:  sessionID,
		Universe: universe.All().Strings(),
		Search:   cfg,
		Created:  time.Now().UTC(),
	}
	payload, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	header.Digest = chainDigest("", payload)

	j := &Journal{
		SessionID:  sessionID,
		Universe:   universe,
		Search:     cfg,
		path:       path,
		file:       file,
		lastDigest: header.Digest,
	}
	if err := j.writeLine(header); err != nil {
		file.Close()
		return nil, err
	}
	return j, nil
}

// OpenJournal opens an existing journal, verifies its integrity and replays
// all recorded trials. The returned trials are in sequence order.
func OpenJournal(path string) (*Journal, []Trial, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Join(fmt.Errorf("failed to open journal at %s", path), err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !scanner.Scan() {
		return nil, nil, errors.Join(ErrJournalCorrupt, fmt.Errorf("journal at %s has no header", path))
	}
	var header journalHeader
	if err := json.Unmarshal(scanner.Bytes(), &header); err != nil {
		return nil, nil, errors.Join(ErrJournalCorrupt, err)
	}
	if header.Version != journalVersion {
		return nil, nil, fmt.Errorf("journal at %s has unsupported version %d", path, header.Version)
	}
	wantDigest := header.Digest
	header.Digest = ""
	payload, err := json.Marshal(header)
	if err != nil {
		return nil, nil, err
	}
	if chainDigest("", payload) != wantDigest {
		return nil, nil, errors.Join(ErrJournalCorrupt, fmt.Errorf("journal header digest mismatch"))
	}

	candidates := make([]Candidate, len(header.Universe))
	for i, c := range header.Universe {
		candidates[i] = Candidate(c)
	}
	universe, err := NewUniverse(candidates)
	if err != nil {
		return nil, nil, errors.Join(ErrJournalCorrupt, err)
	}

	j := &Journal{
		SessionID:  header.Session,
		Universe:   universe,
		Search:     header.Search,
		path:       path,
		lastDigest: wantDigest,
	}

	var trials []Trial
	for scanner.Scan() {
		var record journalRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return nil, nil, errors.Join(ErrJournalCorrupt, err)
		}
		wantDigest := record.Digest
		record.Digest = ""
		payload, err := json.Marshal(record)
		if err != nil {
			return nil, nil, err
		}
		if chainDigest(j.lastDigest, payload) != wantDigest {
			return nil, nil, errors.Join(ErrJournalCorrupt, fmt.Errorf("digest mismatch at trial %d", record.Seq))
		}
		if record.Seq != j.lastSeq+1 {
			return nil, nil, errors.Join(ErrJournalCorrupt, fmt.Errorf("trial sequence jumps from %d to %d", j.lastSeq, record.Seq))
		}

		members := make([]Candidate, len(record.Mask))
		for i, c := range record.Mask {
			members[i] = Candidate(c)
		}
		mask, err := NewMask(universe, members)
		if err != nil {
			return nil, nil, errors.Join(ErrJournalCorrupt, err)
		}
		verdict, err := parseVerdict(record.Verdict)
		if err != nil {
			return nil, nil, errors.Join(ErrJournalCorrupt, err)
		}

		trials = append(trials, Trial{
			Seq:      record.Seq,
			Mask:     mask,
			Verdict:  verdict,
			Duration: time.Duration(record.DurationMs) * time.Millisecond,
			Time:     record.Time,
		})
		j.lastSeq = record.Seq
		j.lastDigest = wantDigest
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, errors.Join(ErrJournalCorrupt, err)
	}

	j.file, err = os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, errors.Join(fmt.Errorf("failed to reopen journal at %s for appending", path), err)
	}
	return j, trials, nil
}

// Append durably records a trial. The record is synced to disk before Append
// returns, so a crash right after never loses it.
func (j *Journal) Append(t Trial) error {
	if t.Seq != j.lastSeq+1 {
		return fmt.Errorf("trial sequence %d does not follow %d", t.Seq, j.lastSeq)
	}
	record := journalRecord{
		Seq:        t.Seq,
		Mask:       t.Mask.Strings(),
		Verdict:    t.Verdict.String(),
		DurationMs: t.Duration.Milliseconds(),
		Time:       t.Time.UTC(),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	record.Digest = chainDigest(j.lastDigest, payload)

	if err := j.writeLine(record); err != nil {
		return err
	}
	j.lastSeq = t.Seq
	j.lastDigest = record.Digest
	return nil
}

func (j *Journal) writeLine(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := j.file.Write(append(line, '\n')); err != nil {
		return errors.Join(fmt.Errorf("failed to append to journal at %s", j.path), err)
	}
	return j.file.Sync()
}

// Close closes the underlying journal file.
func (j *Journal) Close() error {
	if j.file == nil {
		return nil
	}
	return j.file.Close()
}
