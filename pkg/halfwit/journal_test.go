package halfwit

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSearchCfg = SearchConfig{Retries: 2, CheckBaseline: true}

func testUniverse(t *testing.T) Universe {
	t.Helper()
	universe, err := NewUniverse([]Candidate{"a", "b", "c"})
	require.Nil(t, err, "Failed to create universe")
	return universe
}

func testTrial(t *testing.T, universe Universe, seq int, members []Candidate, verdict Verdict) Trial {
	t.Helper()
	mask, err := NewMask(universe, members)
	require.Nil(t, err, "Failed to create mask")
	return Trial{
		Seq:      seq,
		Mask:     mask,
		Verdict:  verdict,
		Duration: 125 * time.Millisecond,
		Time:     time.Now(),
	}
}

func TestJournalRoundTrip(t *testing.T) {
	universe := testUniverse(t)
	path := filepath.Join(t.TempDir(), "journal.jsonl")

	journal, err := CreateJournal(path, "session-1", universe, testSearchCfg)
	require.Nil(t, err, "Failed to create journal")

	want := []Trial{
		testTrial(t, universe, 1, nil, VerdictDoesNotReproduce),
		testTrial(t, universe, 2, []Candidate{"a", "b", "c"}, VerdictReproduces),
		testTrial(t, universe, 3, []Candidate{"b"}, VerdictInconclusive),
	}
	for _, trial := range want {
		require.Nil(t, journal.Append(trial), "Failed to append trial")
	}
	require.Nil(t, journal.Close(), "Failed to close journal")

	reopened, trials, err := OpenJournal(path)
	require.Nil(t, err, "Failed to open journal")
	defer reopened.Close()

	assert.Equal(t, "session-1", reopened.SessionID, "Wrong session id")
	assert.True(t, reopened.Universe.All().Equal(universe.All()), "Wrong universe")
	assert.Equal(t, testSearchCfg, reopened.Search, "Wrong search configuration")
	require.Len(t, trials, len(want), "Wrong number of trials")
	for i, trial := range trials {
		assert.Equal(t, want[i].Seq, trial.Seq, "Wrong sequence number")
		assert.True(t, trial.Mask.Equal(want[i].Mask), "Wrong mask in trial %d", trial.Seq)
		assert.Equal(t, want[i].Verdict, trial.Verdict, "Wrong verdict in trial %d", trial.Seq)
		assert.Equal(t, want[i].Duration, trial.Duration, "Wrong duration in trial %d", trial.Seq)
	}
}

func TestJournalAppendAfterReopen(t *testing.T) {
	universe := testUniverse(t)
	path := filepath.Join(t.TempDir(), "journal.jsonl")

	journal, err := CreateJournal(path, "session-1", universe, testSearchCfg)
	require.Nil(t, err, "Failed to create journal")
	require.Nil(t, journal.Append(testTrial(t, universe, 1, nil, VerdictDoesNotReproduce)))
	require.Nil(t, journal.Close())

	journal, trials, err := OpenJournal(path)
	require.Nil(t, err, "Failed to reopen journal")
	require.Len(t, trials, 1)
	require.Nil(t, journal.Append(testTrial(t, universe, 2, []Candidate{"c"}, VerdictReproduces)))
	require.Nil(t, journal.Close())

	_, trials, err = OpenJournal(path)
	require.Nil(t, err, "Failed to open journal after second append")
	require.Len(t, trials, 2, "Appended trial was lost")
	assert.Equal(t, VerdictReproduces, trials[1].Verdict)
}

func TestJournalRejectsWrongSequence(t *testing.T) {
	universe := testUniverse(t)
	path := filepath.Join(t.TempDir(), "journal.jsonl")

	journal, err := CreateJournal(path, "session-1", universe, testSearchCfg)
	require.Nil(t, err, "Failed to create journal")
	defer journal.Close()

	assert.NotNil(t, journal.Append(testTrial(t, universe, 5, nil, VerdictReproduces)), "Out-of-sequence append was accepted")
}

func TestJournalDetectsTampering(t *testing.T) {
	universe := testUniverse(t)
	path := filepath.Join(t.TempDir(), "journal.jsonl")

	journal, err := CreateJournal(path, "session-1", universe, testSearchCfg)
	require.Nil(t, err, "Failed to create journal")
	require.Nil(t, journal.Append(testTrial(t, universe, 1, []Candidate{"a"}, VerdictReproduces)))
	require.Nil(t, journal.Append(testTrial(t, universe, 2, []Candidate{"b"}, VerdictDoesNotReproduce)))
	require.Nil(t, journal.Close())

	// Flip a recorded verdict without updating the digest chain.
	content, err := os.ReadFile(path)
	require.Nil(t, err)
	tampered := strings.Replace(string(content), `"verdict":"reproduces"`, `"verdict":"does-not-reproduce"`, 1)
	require.NotEqual(t, string(content), tampered, "Tampering had no effect")
	require.Nil(t, os.WriteFile(path, []byte(tampered), 0644))

	_, _, err = OpenJournal(path)
	assert.True(t, errors.Is(err, ErrJournalCorrupt), "Tampered journal was accepted: %v", err)
}

func TestJournalDetectsTruncatedHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	require.Nil(t, os.WriteFile(path, []byte("{\"version\":1,\"ses"), 0644))

	_, _, err := OpenJournal(path)
	assert.True(t, errors.Is(err, ErrJournalCorrupt), "Truncated journal was accepted: %v", err)
}

func TestJournalDetectsGarbageRecord(t *testing.T) {
	universe := testUniverse(t)
	path := filepath.Join(t.TempDir(), "journal.jsonl")

	journal, err := CreateJournal(path, "session-1", universe, testSearchCfg)
	require.Nil(t, err, "Failed to create journal")
	require.Nil(t, journal.Append(testTrial(t, universe, 1, []Candidate{"a"}, VerdictReproduces)))
	require.Nil(t, journal.Close())

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	require.Nil(t, err)
	_, err = file.WriteString("not json at all\n")
	require.Nil(t, err)
	require.Nil(t, file.Close())

	_, _, err = OpenJournal(path)
	assert.True(t, errors.Is(err, ErrJournalCorrupt), "Garbage record was accepted: %v", err)
}

func TestJournalRefusesToOverwrite(t *testing.T) {
	universe := testUniverse(t)
	path := filepath.Join(t.TempDir(), "journal.jsonl")

	journal, err := CreateJournal(path, "session-1", universe, testSearchCfg)
	require.Nil(t, err, "Failed to create journal")
	require.Nil(t, journal.Close())

	_, err = CreateJournal(path, "session-2", universe, testSearchCfg)
	assert.NotNil(t, err, "Existing journal was overwritten")
}
