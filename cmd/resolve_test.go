package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/kernel/extmgr/pkg/extid"
	"github.com/kernel/extmgr/pkg/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type FakeNameResolver struct {
	ResolveFunc func(ctx context.Context, id, archivePath string) resolver.Resolution
}

func (f *FakeNameResolver) Resolve(ctx context.Context, id, archivePath string) resolver.Resolution {
	if f.ResolveFunc != nil {
		return f.ResolveFunc(ctx, id, archivePath)
	}
	return resolver.Resolution{Name: id, Origin: resolver.OriginIdentity}
}

func TestResolve_Table(t *testing.T) {
	setupStdoutCapture(t)

	var gotPath string
	fake := &FakeNameResolver{
		ResolveFunc: func(ctx context.Context, id, archivePath string) resolver.Resolution {
			gotPath = archivePath
			return resolver.Resolution{Name: "Dark Reader", Origin: resolver.OriginRemote, Source: "store"}
		},
	}
	r := ResolveCmd{resolver: fake}
	require.NoError(t, r.Resolve(context.Background(), ResolveInput{ID: testID, PackagePath: "/a.crx"}))

	assert.Equal(t, "/a.crx", gotPath)
	out := outBuf.String()
	assert.Contains(t, out, "Dark Reader")
	assert.Contains(t, out, "remote")
	assert.Contains(t, out, "store")
}

func TestResolve_JSON(t *testing.T) {
	setupStdoutCapture(t)

	r := ResolveCmd{resolver: &FakeNameResolver{}}
	require.NoError(t, r.Resolve(context.Background(), ResolveInput{ID: "ABCDEFGHIJKLMNOPQRSTUVWXYZABCDEF", Output: "json"}))

	var out resolveOutput
	require.NoError(t, json.Unmarshal(outBuf.Bytes(), &out))
	assert.Equal(t, resolveOutput{ID: testID, Name: testID, Origin: resolver.OriginIdentity}, out)
}

func TestResolve_InvalidID(t *testing.T) {
	setupStdoutCapture(t)

	r := ResolveCmd{resolver: &FakeNameResolver{}}
	err := r.Resolve(context.Background(), ResolveInput{ID: "not-an-id"})
	assert.ErrorIs(t, err, extid.ErrIdentifierNotFound)
}

func TestOpen(t *testing.T) {
	setupStdoutCapture(t)

	var opened string
	o := OpenCmd{storeURL: "https://chrome.google.com/", openURL: func(url string) error {
		opened = url
		return nil
	}}
	require.NoError(t, o.Open(OpenInput{ID: testID}))
	assert.Equal(t, "https://chrome.google.com/webstore/detail/"+testID, opened)
}

func TestOpen_PrintsWhenBrowserFails(t *testing.T) {
	setupStdoutCapture(t)

	o := OpenCmd{storeURL: "https://chrome.google.com", openURL: func(string) error {
		return errors.New("no display")
	}}
	require.NoError(t, o.Open(OpenInput{ID: testID}))
	assert.Contains(t, outBuf.String(), "Could not open a browser")
	assert.Contains(t, outBuf.String(), "/webstore/detail/"+testID)
}

func TestOpen_PrintOnly(t *testing.T) {
	setupStdoutCapture(t)

	o := OpenCmd{storeURL: "https://chrome.google.com", openURL: func(string) error {
		t.Fatal("browser opened with --print")
		return nil
	}}
	require.NoError(t, o.Open(OpenInput{ID: testID, PrintOnly: true}))
	assert.Equal(t, "https://chrome.google.com/webstore/detail/"+testID+"\n", outBuf.String())

	assert.ErrorIs(t, o.Open(OpenInput{ID: "short"}), extid.ErrIdentifierNotFound)
}

func TestMetadataString(t *testing.T) {
	assert.Equal(t, "dev", Metadata{}.String())
	assert.Equal(t, "1.2.0 (commit abc123)", Metadata{Version: "1.2.0", Commit: "abc123"}.String())
	assert.Equal(t, "1.2.0 (commit abc123, built 2026-01-02)", Metadata{Version: "1.2.0", Commit: "abc123", Date: "2026-01-02"}.String())
}
