package duckdb

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openInMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testCalls() []Call {
	return []Call{
		{Chrom: "chrX", Start: 100, End: 200, GC: 0.4, Map: 1, NRC: -0.9, Pred: -1, Called: true, Proba: 0.95, Confidence: 0.95},
		{Chrom: "chrX", Start: 300, End: 400, GC: 0.5, Map: 0.5, NRC: 0.02, Pred: 0, Called: true, Proba: 0.8, Confidence: 0.4},
		{Chrom: "chrX", Start: 300, End: 400, GC: 0.5, Map: 0.5, NRC: 0.02, Pred: 1, Called: true, Proba: 0.6, Confidence: 0.3},
		{Chrom: "chrX", Start: 500, End: 600, GC: 0.5, Map: 1, NRC: math.NaN(), Proba: math.NaN(), Confidence: math.NaN()},
	}
}

// --- Call store tests (DuckDB) ---

func TestOpenClose(t *testing.T) {
	s := openInMemory(t)
	assert.NotNil(t, s.DB())
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "calls.duckdb")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.FileExists(t, path)
}

func TestWriteAndLookupCalls(t *testing.T) {
	s := openInMemory(t)
	src := FileFingerprint{Path: "S1_TARGET.txt.gz", Size: 10, ModTime: time.Unix(1700000000, 0)}

	require.NoError(t, s.WriteCalls("S1", "LR", src, testCalls()))

	calls, err := s.LookupCalls("S1", "LR")
	require.NoError(t, err)
	require.Len(t, calls, 3, "duplicate region is written once")
	assert.Equal(t, -1, calls[0].Pred)
	assert.True(t, calls[0].Called)
	assert.Equal(t, 0, calls[1].Pred, "first duplicate wins")
	assert.False(t, calls[2].Called)
	assert.True(t, math.IsNaN(calls[2].Proba))

	calls, err = s.LookupCalls("S2", "LR")
	require.NoError(t, err)
	assert.Empty(t, calls)
}

func TestWriteCallsReplaces(t *testing.T) {
	s := openInMemory(t)
	src := FileFingerprint{Path: "S1_TARGET.txt.gz", Size: 10, ModTime: time.Unix(1700000000, 0)}

	require.NoError(t, s.WriteCalls("S1", "LR", src, testCalls()))
	require.NoError(t, s.WriteCalls("S1", "LR", src, testCalls()[:1]))

	calls, err := s.LookupCalls("S1", "LR")
	require.NoError(t, err)
	assert.Len(t, calls, 1)
}

func TestCallCounts(t *testing.T) {
	s := openInMemory(t)
	src := FileFingerprint{Path: "x", ModTime: time.Unix(1700000000, 0)}
	require.NoError(t, s.WriteCalls("S1", "LR", src, testCalls()))
	require.NoError(t, s.WriteCalls("S2", "LR", src, testCalls()[:1]))
	require.NoError(t, s.WriteCalls("S2", "RF", src, testCalls()[1:2]))

	counts, err := s.CallCounts("LR")
	require.NoError(t, err)
	assert.Equal(t, map[string]map[int]int{
		"S1": {-1: 1, 0: 1},
		"S2": {-1: 1},
	}, counts)
}

func TestProcessed(t *testing.T) {
	s := openInMemory(t)
	src := FileFingerprint{Path: "S1_TARGET.txt.gz", Size: 10, ModTime: time.Unix(1700000000, 123000)}

	ok, err := s.Processed("S1", "LR", src)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.WriteCalls("S1", "LR", src, testCalls()))
	ok, err = s.Processed("S1", "LR", src)
	require.NoError(t, err)
	assert.True(t, ok)

	changed := src
	changed.Size = 11
	ok, err = s.Processed("S1", "LR", changed)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClearCalls(t *testing.T) {
	s := openInMemory(t)
	require.NoError(t, s.WriteCalls("S1", "LR", FileFingerprint{}, testCalls()))
	require.NoError(t, s.ClearCalls())

	calls, err := s.LookupCalls("S1", "LR")
	require.NoError(t, err)
	assert.Empty(t, calls)
}

// --- File fingerprint tests ---

func TestStatFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.txt")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0644))

	fp, err := StatFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(3), fp.Size)
	assert.Equal(t, path, fp.Path)

	_, err = StatFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	_, err = StatFiles(path, filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestFingerprintSame(t *testing.T) {
	a := FileFingerprint{Size: 1, ModTime: time.Unix(10, 1500)}
	b := FileFingerprint{Size: 1, ModTime: time.Unix(10, 1999)}
	assert.True(t, a.Same(b))
	b.ModTime = time.Unix(10, 2000)
	assert.False(t, a.Same(b))
}
