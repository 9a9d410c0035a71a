package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rnseaudit/internal/audit"
	"rnseaudit/internal/core"
	"rnseaudit/internal/merkle"
	"rnseaudit/internal/telemetry"
)

func testLog() ([]byte, [][]byte) {
	lines := [][]byte{[]byte(`{"t":0}`), []byte(`{"t":1}`), []byte(`{"t":2}`), []byte(`{"t":3}`)}
	var log []byte
	for _, l := range lines {
		log = append(append(log, l...), '\n')
	}
	return log, lines
}

func testManifest(t *testing.T) (Manifest, []byte) {
	t.Helper()
	log, lines := testLog()
	com, err := merkle.Commit(lines, 2, merkle.Strict)
	require.NoError(t, err)
	id, err := NewRunID()
	require.NoError(t, err)
	return Manifest{
		RunID:      id,
		Profile:    core.ProfileVersion,
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Seeds:      FormatSeeds([]uint64{core.DefaultSeed, core.DefaultSeed + core.SeedStride}),
		Ticks:      2,
		Params:     core.DefaultParams(),
		Records:    4,
		Accepted:   1,
		Digest:     audit.Digest(log),
		Commitment: &com,
	}, log
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	st, err := NewStore(t.TempDir())
	require.NoError(t, err)
	m, log := testManifest(t)
	require.NoError(t, st.SaveRun(m, log))

	ids, err := st.ListRunIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{m.RunID}, ids)

	gotLog, gotM, err := st.LoadLog(m.RunID)
	require.NoError(t, err)
	assert.Equal(t, log, gotLog)
	assert.Equal(t, m.Digest, gotM.Digest)
	assert.True(t, m.CreatedAt.Equal(gotM.CreatedAt))

	seeds, err := gotM.SeedValues()
	require.NoError(t, err)
	assert.Equal(t, []uint64{core.DefaultSeed, core.DefaultSeed + core.SeedStride}, seeds)

	com, err := st.LoadCommitment(m.RunID)
	require.NoError(t, err)
	assert.Equal(t, m.Commitment.Head, com.Head)
}

func TestStore_RejectsMismatchedLog(t *testing.T) {
	st, err := NewStore(t.TempDir())
	require.NoError(t, err)
	m, log := testManifest(t)
	log[0] = '['
	assert.Error(t, st.SaveRun(m, log))
	ids, err := st.ListRunIDs()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestStore_DetectsTamperedLogOnDisk(t *testing.T) {
	st, err := NewStore(t.TempDir())
	require.NoError(t, err)
	m, log := testManifest(t)
	require.NoError(t, st.SaveRun(m, log))

	require.NoError(t, os.WriteFile(st.LogPath(m.RunID), append([]byte(" "), log...), 0o644))
	_, _, err = st.LoadLog(m.RunID)
	assert.Error(t, err)

	_, err = st.LoadManifest("00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManifest_Validate(t *testing.T) {
	m, _ := testManifest(t)
	require.NoError(t, m.Validate())

	bad := m
	bad.RunID = "run-1"
	bad.Profile = "other/1"
	bad.Records = 3
	bad.Digest = "abc"
	err := bad.Validate()
	require.Error(t, err)
	for _, want := range []string{"run_id", "profile", "records", "digest"} {
		assert.Contains(t, err.Error(), want)
	}

	forged := *m.Commitment
	forged.Head[0] ^= 1
	bad = m
	bad.Commitment = &forged
	assert.ErrorContains(t, bad.Validate(), "head")
}

func TestAtomicFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out", "audit.log")
	n, err := AtomicFile{Path: p}.Write([]byte("a\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "a\n", string(b))

	entries, err := os.ReadDir(filepath.Dir(p))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestStrictJSONHelpers(t *testing.T) {
	dir := t.TempDir()
	type doc struct {
		Name string `json:"name"`
	}

	b, err := jsonMarshalStable(doc{Name: "a"})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"name\": \"a\"\n}\n", string(b))

	good := filepath.Join(dir, "good.json")
	require.NoError(t, WriteFileAtomic(good, b, 0o644))
	var got doc
	require.NoError(t, readJSONStrict(good, &got))
	assert.Equal(t, "a", got.Name)

	trailing := filepath.Join(dir, "trailing.json")
	require.NoError(t, os.WriteFile(trailing, []byte(`{"name":"a"} {}`), 0o644))
	assert.ErrorContains(t, readJSONStrict(trailing, &got), "trailing content")

	unknown := filepath.Join(dir, "unknown.json")
	require.NoError(t, os.WriteFile(unknown, []byte(`{"name":"a","extra":1}`), 0o644))
	assert.ErrorContains(t, readJSONStrict(unknown, &got), "decode unknown.json")

	assert.ErrorIs(t, readJSONStrict(filepath.Join(dir, "missing.json"), &got), os.ErrNotExist)
}

func testRegistration(t *testing.T) Registration {
	t.Helper()
	m, _ := testManifest(t)
	r, err := RegistrationFor(m, time.UnixMilli(1_700_000_000_123))
	require.NoError(t, err)
	return r
}

func registries(t *testing.T) map[string]Registry {
	t.Helper()
	dir := t.TempDir()
	file, err := NewFileRegistry(filepath.Join(dir, "file"))
	require.NoError(t, err)
	bdg, err := OpenBadgerRegistry(InMemoryBadgerConfig())
	require.NoError(t, err)
	sq, err := OpenSQLiteRegistry(filepath.Join(dir, "reg.db"))
	require.NoError(t, err)
	regs := map[string]Registry{BackendFile: file, BackendBadger: bdg, BackendSQLite: sq}
	t.Cleanup(func() {
		for _, r := range regs {
			_ = r.Close()
		}
	})
	return regs
}

func TestRegistry_Backends(t *testing.T) {
	ctx := context.Background()
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			r := testRegistration(t)
			require.NoError(t, reg.Register(ctx, r))

			got, err := reg.Lookup(ctx, r.RunID)
			require.NoError(t, err)
			assert.Equal(t, r.Head, got.Head)
			assert.Equal(t, r.Roots, got.Roots)
			assert.Equal(t, r.BatchSize, got.BatchSize)
			assert.True(t, r.RegisteredAt.Equal(got.RegisteredAt))

			dup := r
			dup.Roots = nil
			dup.Head = merkle.GenesisHead()
			assert.ErrorIs(t, reg.Register(ctx, dup), ErrAlreadyRegistered)

			_, err = reg.Lookup(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			second := testRegistration(t)
			require.NoError(t, reg.Register(ctx, second))
			all, err := reg.List(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, r.RunID, all[0].RunID)

			forged := testRegistration(t)
			forged.Head[0] ^= 1
			assert.Error(t, reg.Register(ctx, forged))
		})
	}
}

func TestSQLiteRegistry_LookupByHead(t *testing.T) {
	sq, err := OpenSQLiteRegistry(filepath.Join(t.TempDir(), "reg.db"))
	require.NoError(t, err)
	defer sq.Close()

	r := testRegistration(t)
	require.NoError(t, sq.Register(context.Background(), r))
	found, err := sq.LookupByHead(context.Background(), r.Head)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, r.RunID, found[0].RunID)
}

func TestBadgerRegistry_Persists(t *testing.T) {
	cfg := DefaultBadgerConfig()
	cfg.Path = filepath.Join(t.TempDir(), "db")
	reg, err := OpenBadgerRegistry(cfg)
	require.NoError(t, err)
	r := testRegistration(t)
	require.NoError(t, reg.Register(context.Background(), r))
	require.NoError(t, reg.Close())

	reg, err = OpenBadgerRegistry(cfg)
	require.NoError(t, err)
	defer reg.Close()
	got, err := reg.Lookup(context.Background(), r.RunID)
	require.NoError(t, err)
	assert.Equal(t, r.Head, got.Head)
}

func TestOpenRegistry_Instrumented(t *testing.T) {
	m := telemetry.NewMetrics(prometheus.NewRegistry())
	reg, err := OpenRegistry(BackendSQLite, t.TempDir(), nil, m)
	require.NoError(t, err)
	defer reg.Close()

	r := testRegistration(t)
	require.NoError(t, reg.Register(context.Background(), r))
	assert.Error(t, reg.Register(context.Background(), r))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RegistryOpsTotal.WithLabelValues("sqlite", "register", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RegistryOpsTotal.WithLabelValues("sqlite", "register", "error")))

	_, err = OpenRegistry("etcd", t.TempDir(), nil, nil)
	assert.Error(t, err)
}
