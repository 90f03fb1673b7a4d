package engine

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kernel/extmgr/pkg/extid"
	"github.com/kernel/extmgr/pkg/namecache"
	"github.com/kernel/extmgr/pkg/registry"
	"github.com/kernel/extmgr/pkg/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testID  = "abcdefghijklmnopqrstuvwxyzabcdef"
	otherID = "zyxwvutsrqponmlkjihgfedcbazyxwvu"
)

// stubSource implements resolver.Source with a fixed answer and call count.
type stubSource struct {
	name  string
	calls int
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Lookup(context.Context, string) string {
	s.calls++
	return s.name
}

type fixture struct {
	engine  *Engine
	store   *registry.Memory
	cache   *namecache.Cache
	remote  *stubSource
	dir     string
	storage string
}

func newFixture(t *testing.T, remoteName string) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		store:   registry.NewMemory(),
		cache:   namecache.Open(filepath.Join(dir, "names.json")),
		remote:  &stubSource{name: remoteName},
		dir:     dir,
		storage: filepath.Join(dir, "storage"),
	}
	f.engine = New(Config{
		Store:      f.store,
		Cache:      f.cache,
		Resolver:   resolver.New(f.cache, resolver.Options{Sources: []resolver.Source{f.remote}}),
		StorageDir: f.storage,
	})
	return f
}

// writePackage writes a zip package with the given manifest under the
// fixture's download directory.
func (f *fixture) writePackage(t *testing.T, name, manifest string) string {
	t.Helper()
	path := filepath.Join(f.dir, "downloads", name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	out, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(out)
	if manifest != "" {
		w, err := zw.Create("manifest.json")
		require.NoError(t, err)
		_, err = w.Write([]byte(manifest))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())
	return path
}

func TestInstallScenario(t *testing.T) {
	f := newFixture(t, "")
	pkg := f.writePackage(t, testID+"_v2.crx", `{"name":"Sample","version":"2.0.1"}`)

	res, err := f.engine.Install(context.Background(), InstallInput{PackagePath: pkg})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)

	dest := filepath.Join(f.storage, testID+".crx")
	absDest, _ := filepath.Abs(dest)
	assert.Equal(t, Record{
		ID:         testID,
		Name:       "Sample",
		NameOrigin: resolver.OriginManifest,
		Path:       absDest,
		Version:    "2.0.1",
		Status:     StatusPresent,
	}, res.Record)
	assert.FileExists(t, dest)

	path, ok, err := f.store.ReadField(registry.Extensions, testID, registry.FieldPath)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, absDest, path)

	forcelist, err := registry.ReadOrdinals(f.store, registry.Forcelist)
	require.NoError(t, err)
	assert.Equal(t, []registry.OrdinalEntry{{Ordinal: "1", Value: registry.ForcelistValue(testID, absDest)}}, forcelist)
	assert.Equal(t, 1, res.ForcelistOrdinal)

	allowlist, err := registry.ReadOrdinals(f.store, registry.Allowlist)
	require.NoError(t, err)
	assert.Equal(t, []registry.OrdinalEntry{{Ordinal: "1", Value: testID}}, allowlist)
	assert.Equal(t, 1, res.AllowlistOrdinal)

	name, ok := f.cache.Get(testID)
	assert.True(t, ok)
	assert.Equal(t, "Sample", name)
	assert.Zero(t, f.remote.calls)
}

func TestInstallWithoutIdentifierWritesNothing(t *testing.T) {
	f := newFixture(t, "")
	pkg := f.writePackage(t, "extension_v2.crx", `{"version":"1.0"}`)

	_, err := f.engine.Install(context.Background(), InstallInput{PackagePath: pkg})
	require.ErrorIs(t, err, extid.ErrIdentifierNotFound)

	for _, root := range []registry.Root{registry.Extensions, registry.Forcelist, registry.Allowlist} {
		keys, err := f.store.ListChildren(root)
		require.NoError(t, err)
		assert.Empty(t, keys, root.String())
	}
	assert.NoDirExists(t, f.storage)
	assert.Zero(t, f.cache.Len())
}

func TestInstallExplicitID(t *testing.T) {
	f := newFixture(t, "Remote Name")
	pkg := f.writePackage(t, "download.zip", `{"version":"1.0"}`)

	res, err := f.engine.Install(context.Background(), InstallInput{PackagePath: pkg, ID: " " + otherID + " ", SkipPolicy: true})
	require.NoError(t, err)
	assert.Equal(t, otherID, res.Record.ID)
	assert.Equal(t, ".zip", filepath.Ext(res.Record.Path))
	assert.Equal(t, "Remote Name", res.Record.Name)
	assert.Equal(t, resolver.OriginRemote, res.Record.NameOrigin)
	assert.Zero(t, res.ForcelistOrdinal)

	keys, err := f.store.ListChildren(registry.Forcelist)
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = f.engine.Install(context.Background(), InstallInput{PackagePath: pkg, ID: "short"})
	assert.ErrorIs(t, err, extid.ErrIdentifierNotFound)
}

func TestInstallMissingPackage(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.engine.Install(context.Background(), InstallInput{PackagePath: filepath.Join(f.dir, testID+".crx")})
	assert.ErrorIs(t, err, ErrPackageNotFound)
}

func TestInstallUnreadableManifestIsSoft(t *testing.T) {
	f := newFixture(t, "")
	pkg := f.writePackage(t, testID+".crx", "")

	res, err := f.engine.Install(context.Background(), InstallInput{PackagePath: pkg})
	require.NoError(t, err)
	assert.Empty(t, res.Record.Version)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "version")

	// identity names are not cached
	assert.Equal(t, testID, res.Record.Name)
	assert.Equal(t, resolver.OriginIdentity, res.Record.NameOrigin)
	assert.Zero(t, f.cache.Len())

	_, ok, err := f.store.ReadField(registry.Extensions, testID, registry.FieldVersion)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInstallKeepsExistingCachedName(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.cache.Put(testID, "User Name"))
	pkg := f.writePackage(t, testID+".crx", `{"name":"Packaged","version":"1.0"}`)

	res, err := f.engine.Install(context.Background(), InstallInput{PackagePath: pkg})
	require.NoError(t, err)
	assert.Equal(t, "User Name", res.Record.Name)
	name, _ := f.cache.Get(testID)
	assert.Equal(t, "User Name", name)
}

func TestInstallDowngradeWarns(t *testing.T) {
	f := newFixture(t, "")
	newer := f.writePackage(t, testID+"_new.crx", `{"name":"X","version":"3.1.0"}`)
	older := f.writePackage(t, testID+"_old.crx", `{"name":"X","version":"3.0.9"}`)

	_, err := f.engine.Install(context.Background(), InstallInput{PackagePath: newer})
	require.NoError(t, err)
	res, err := f.engine.Install(context.Background(), InstallInput{PackagePath: older})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "newer version 3.1.0")

	// reinstall appends again; lists are not deduplicated
	assert.Equal(t, 2, res.ForcelistOrdinal)
	assert.Equal(t, 2, res.AllowlistOrdinal)
}

func TestInstallFromStorageDirSkipsCopy(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, os.MkdirAll(f.storage, 0755))
	src := f.writePackage(t, testID+".crx", `{"version":"1.0"}`)
	dest := filepath.Join(f.storage, testID+".crx")
	require.NoError(t, os.Rename(src, dest))

	res, err := f.engine.Install(context.Background(), InstallInput{PackagePath: dest})
	require.NoError(t, err)
	assert.Equal(t, "1.0", res.Record.Version)
	assert.FileExists(t, dest)
}

// failingStore fails writes on the configured roots.
type failingStore struct {
	registry.Store
	failRoots map[registry.Root]bool
}

func (s failingStore) WriteField(root registry.Root, key, field, value string) error {
	if s.failRoots[root] {
		return errors.New("access denied")
	}
	return s.Store.WriteField(root, key, field, value)
}

func (s failingStore) AppendOrdinal(root registry.Root, value string) (int, error) {
	if s.failRoots[root] {
		return 0, errors.New("access denied")
	}
	return s.Store.AppendOrdinal(root, value)
}

func TestInstallStoreFailures(t *testing.T) {
	t.Run("policy failures are warnings", func(t *testing.T) {
		f := newFixture(t, "")
		f.engine.store = failingStore{Store: f.store, failRoots: map[registry.Root]bool{registry.Forcelist: true, registry.Allowlist: true}}
		pkg := f.writePackage(t, testID+".crx", `{"name":"X","version":"1.0"}`)

		res, err := f.engine.Install(context.Background(), InstallInput{PackagePath: pkg})
		require.NoError(t, err)
		assert.Len(t, res.Warnings, 2)

		keys, err := f.store.ListChildren(registry.Extensions)
		require.NoError(t, err)
		assert.Equal(t, []string{testID}, keys)
	})

	t.Run("extension entry failure is fatal", func(t *testing.T) {
		f := newFixture(t, "")
		f.engine.store = failingStore{Store: f.store, failRoots: map[registry.Root]bool{registry.Extensions: true}}
		pkg := f.writePackage(t, testID+".crx", `{"name":"X","version":"1.0"}`)

		_, err := f.engine.Install(context.Background(), InstallInput{PackagePath: pkg})
		require.Error(t, err)
		keys, err := f.store.ListChildren(registry.Forcelist)
		require.NoError(t, err)
		assert.Empty(t, keys)
		assert.Zero(t, f.cache.Len())
	})
}

func TestListMissingPackage(t *testing.T) {
	f := newFixture(t, "Remote")
	require.NoError(t, f.store.WriteField(registry.Extensions, testID, registry.FieldPath, filepath.Join(f.dir, "gone.crx")))
	require.NoError(t, f.store.WriteField(registry.Extensions, otherID, registry.FieldPath, filepath.Join(f.dir, "gone2.crx")))
	require.NoError(t, f.cache.Put(otherID, "Cached Name"))

	records, err := f.engine.List(context.Background(), ListInput{})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, testID, records[0].ID)
	assert.Equal(t, StatusMissing, records[0].Status)
	assert.Equal(t, testID, records[0].Name)

	assert.Equal(t, StatusMissing, records[1].Status)
	assert.Equal(t, "Cached Name", records[1].Name)

	assert.Zero(t, f.remote.calls, "missing packages never trigger remote lookups")
}

func TestListPresentPackage(t *testing.T) {
	f := newFixture(t, "Remote")
	pkg := f.writePackage(t, testID+".crx", `{"version":"1.0"}`)
	require.NoError(t, f.store.WriteField(registry.Extensions, testID, registry.FieldPath, pkg))
	require.NoError(t, f.store.WriteField(registry.Extensions, testID, registry.FieldVersion, "1.0"))
	require.NoError(t, f.store.WriteField(registry.Extensions, otherID, registry.FieldVersion, "9"))

	records, err := f.engine.List(context.Background(), ListInput{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, Record{
		ID: testID, Name: "Remote", NameOrigin: resolver.OriginRemote,
		Path: pkg, Version: "1.0", Status: StatusPresent,
	}, records[0])
	assert.Equal(t, StatusMissing, records[1].Status, "empty path is missing")
	assert.Equal(t, 1, f.remote.calls)
	assert.Zero(t, f.cache.Len(), "list never writes the cache")

	records, err = f.engine.List(context.Background(), ListInput{Offline: true})
	require.NoError(t, err)
	assert.Equal(t, testID, records[0].Name)
	assert.Equal(t, 1, f.remote.calls)
}

func TestListEmptyStore(t *testing.T) {
	f := newFixture(t, "")
	records, err := f.engine.List(context.Background(), ListInput{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func strPtr(s string) *string { return &s }

func TestModify(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.store.WriteField(registry.Extensions, testID, registry.FieldPath, "/old.crx"))
	require.NoError(t, f.store.WriteField(registry.Extensions, testID, registry.FieldVersion, "1.0"))

	in := ModifyInput{ID: testID, Version: strPtr("1.1"), Name: strPtr("Renamed")}
	res, err := f.engine.Modify(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", res.Record.Name)
	assert.Equal(t, "/old.crx", res.Record.Path, "omitted fields are preserved")
	assert.Equal(t, "1.1", res.Record.Version)

	snapshot := func() (string, string, string) {
		path, _, _ := f.store.ReadField(registry.Extensions, testID, registry.FieldPath)
		version, _, _ := f.store.ReadField(registry.Extensions, testID, registry.FieldVersion)
		name, _ := f.cache.Get(testID)
		return path, version, name
	}
	p1, v1, n1 := snapshot()

	_, err = f.engine.Modify(context.Background(), in)
	require.NoError(t, err)
	p2, v2, n2 := snapshot()
	assert.Equal(t, []string{p1, v1, n1}, []string{p2, v2, n2})
	assert.Equal(t, "Renamed", n2)

	// reloaded cache agrees
	assert.Equal(t, 1, namecache.Open(f.cache.Path()).Len())
}

func TestModifyClearsName(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.store.WriteField(registry.Extensions, testID, registry.FieldPath, "/a.crx"))
	require.NoError(t, f.cache.Put(testID, "Old"))

	res, err := f.engine.Modify(context.Background(), ModifyInput{ID: testID, Name: strPtr("")})
	require.NoError(t, err)
	assert.Equal(t, testID, res.Record.Name)
	_, ok := f.cache.Get(testID)
	assert.False(t, ok)
}

func TestModifyUnknownRecord(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.engine.Modify(context.Background(), ModifyInput{ID: testID, Path: strPtr("/x.crx")})
	assert.ErrorIs(t, err, ErrRecordNotFound)

	keys, err := f.store.ListChildren(registry.Extensions)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestRemoveLeavesPolicyEntries(t *testing.T) {
	f := newFixture(t, "")
	pkg := f.writePackage(t, testID+".crx", `{"name":"Sample","version":"1.0"}`)
	_, err := f.engine.Install(context.Background(), InstallInput{PackagePath: pkg})
	require.NoError(t, err)

	results := f.engine.Remove(context.Background(), testID, otherID)
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.Empty(t, results[0].Warning)
	assert.ErrorIs(t, results[1].Err, registry.ErrKeyNotFound)

	keys, err := f.store.ListChildren(registry.Extensions)
	require.NoError(t, err)
	assert.Empty(t, keys)
	_, ok := f.cache.Get(testID)
	assert.False(t, ok)

	forcelist, err := f.engine.Policy(context.Background(), registry.Forcelist)
	require.NoError(t, err)
	require.Len(t, forcelist, 1)
	assert.Equal(t, testID, forcelist[0].ID)
	assert.True(t, forcelist[0].Orphaned)

	allowlist, err := f.engine.Policy(context.Background(), registry.Allowlist)
	require.NoError(t, err)
	require.Len(t, allowlist, 1)
}

func TestPolicyRejectsExtensionRoot(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.engine.Policy(context.Background(), registry.Extensions)
	assert.ErrorIs(t, err, registry.ErrNotOrdinal)
}

func TestPrunePolicy(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.store.WriteField(registry.Extensions, testID, registry.FieldPath, "/a.crx"))

	for _, v := range []string{
		registry.ForcelistValue(otherID, "/b.crx"),
		registry.ForcelistValue(testID, "/a.crx"),
		registry.ForcelistValue(testID, "/a.crx"),
	} {
		_, err := f.store.AppendOrdinal(registry.Forcelist, v)
		require.NoError(t, err)
	}
	for _, v := range []string{testID, otherID, testID} {
		_, err := f.store.AppendOrdinal(registry.Allowlist, v)
		require.NoError(t, err)
	}
	// leave a gap at the head of the allowlist
	require.NoError(t, f.store.DeleteKey(registry.Allowlist, "1"))

	res, err := f.engine.PrunePolicy(context.Background(), PruneInput{})
	require.NoError(t, err)
	require.Len(t, res.Lists, 2)

	force := res.Lists[0]
	assert.Equal(t, "forcelist", force.List)
	assert.True(t, force.Rewritten)
	assert.Equal(t, 2, force.Kept)
	require.Len(t, force.Removed, 1)
	assert.Equal(t, otherID, force.Removed[0].ID)

	entries, err := registry.ReadOrdinals(f.store, registry.Forcelist)
	require.NoError(t, err)
	assert.Equal(t, []registry.OrdinalEntry{
		{Ordinal: "1", Value: registry.ForcelistValue(testID, "/a.crx")},
		{Ordinal: "2", Value: registry.ForcelistValue(testID, "/a.crx")},
	}, entries)

	allowlist, err := registry.ReadOrdinals(f.store, registry.Allowlist)
	require.NoError(t, err)
	assert.Equal(t, []registry.OrdinalEntry{{Ordinal: "1", Value: testID}}, allowlist)

	// next append lands at N+1 without colliding
	ordinal, err := f.store.AppendOrdinal(registry.Allowlist, testID)
	require.NoError(t, err)
	assert.Equal(t, 2, ordinal)
}

func TestPrunePolicyDedupeAndNoop(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.store.WriteField(registry.Extensions, testID, registry.FieldPath, "/a.crx"))
	_, _ = f.store.AppendOrdinal(registry.Allowlist, testID)

	res, err := f.engine.PrunePolicy(context.Background(), PruneInput{})
	require.NoError(t, err)
	for _, list := range res.Lists {
		assert.False(t, list.Rewritten, list.List)
	}

	_, _ = f.store.AppendOrdinal(registry.Allowlist, testID)
	res, err = f.engine.PrunePolicy(context.Background(), PruneInput{Dedupe: true})
	require.NoError(t, err)
	assert.True(t, res.Lists[1].Rewritten)
	assert.Equal(t, 1, res.Lists[1].Kept)
	require.Len(t, res.Lists[1].Removed, 1)
	assert.Equal(t, 2, res.Lists[1].Removed[0].Ordinal)
}
