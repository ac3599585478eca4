package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func buildInfoWith(settings map[string]string) func() (*debug.BuildInfo, bool) {
	info := &debug.BuildInfo{}
	for k, v := range settings {
		info.Settings = append(info.Settings, debug.BuildSetting{Key: k, Value: v})
	}
	return func() (*debug.BuildInfo, bool) { return info, true }
}

func TestResolveShortensRevision(t *testing.T) {
	b := resolve(buildInfoWith(map[string]string{
		"vcs.revision": "a3f8c2d1e4b5f6a7b8c9d0e1f2a3b4c5d6e7f8a9",
	}))
	assert.Equal(t, "a3f8c2d1", b.Commit)
	assert.False(t, b.Dirty)
}

func TestResolveMarksDirtyCheckout(t *testing.T) {
	b := resolve(buildInfoWith(map[string]string{
		"vcs.revision": "a3f8c2d1e4b5",
		"vcs.modified": "true",
	}))
	assert.Equal(t, "a3f8c2d1", b.Commit)
	assert.True(t, b.Dirty)
}

func TestResolveFallsBackToDev(t *testing.T) {
	b := resolve(func() (*debug.BuildInfo, bool) { return nil, false })
	assert.Equal(t, "dev", b.Commit)

	b = resolve(buildInfoWith(nil))
	assert.Equal(t, "dev", b.Commit)
}

func TestStringFormat(t *testing.T) {
	assert.Contains(t, String(), AppName+"/")
}
