//go:build linux

package cgroup

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	v2Mountinfo = `22 1 0:21 / /proc rw,nosuid - proc proc rw
30 25 0:26 / /sys/fs/cgroup rw,nosuid,nodev,noexec,relatime shared:4 - cgroup2 cgroup2 rw,nsdelegate
`
	hybridMountinfo = `30 25 0:26 / /sys/fs/cgroup/unified rw shared:4 - cgroup2 cgroup2 rw
31 25 0:27 / /sys/fs/cgroup/cpu,cpuacct rw shared:5 - cgroup cgroup rw,cpu,cpuacct
32 25 0:28 / /sys/fs/cgroup/memory rw shared:6 - cgroup cgroup rw,memory
`
)

func TestDetectFrom(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   Version
		detail string
	}{
		{"v2", v2Mountinfo, V2, "cgroup2 on /sys/fs/cgroup"},
		{"hybrid", hybridMountinfo, Hybrid, "cgroup2 on /sys/fs/cgroup/unified; cgroup v1 on /sys/fs/cgroup/cpu,cpuacct,/sys/fs/cgroup/memory"},
		{"v1", "31 25 0:27 / /sys/fs/cgroup/memory rw - cgroup cgroup rw,memory\n", V1, "cgroup v1 on /sys/fs/cgroup/memory"},
		{"none", "22 1 0:21 / /proc rw - proc proc rw\ngarbage\n", Unsupported, "no cgroup mounts found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := DetectFrom(strings.NewReader(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, info.Version)
			assert.Equal(t, tt.detail, info.Detail())
		})
	}
}

func TestUnifiedPath(t *testing.T) {
	assert.Equal(t, "/user.slice/session-1.scope", unifiedPath("12:memory:/user.slice\n0::/user.slice/session-1.scope\n"))
	assert.Empty(t, unifiedPath("4:cpu:/\n"))
}

func TestVersion_MarshalText(t *testing.T) {
	b, err := V2.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "cgroup v2", string(b))
	assert.Equal(t, "unsupported", Version(42).String())
}

func Test_Detect(t *testing.T) {
	info, err := Detect()
	require.NoError(t, err)
	assert.NotEmpty(t, info.Detail())

	t.Logf("detected %s: %s", info.Version, info.Detail())
}
