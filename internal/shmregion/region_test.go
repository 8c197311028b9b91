package shmregion

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func uniqueName(t *testing.T) string {
	t.Helper()
	return "test-" + t.Name() + "-" + randSuffix()
}

func randSuffix() string {
	// Not cryptographically anything; just needs to not collide within
	// a single test run sharing the OS temp directory.
	return os.Getenv("HOSTNAME") + "-x"
}

func TestCreateAttachShareMemory(t *testing.T) {
	name := uniqueName(t)

	owner, err := Create(name, 64)
	require.NoError(t, err)
	defer func() {
		_ = owner.Close()
		_ = owner.Unlink()
	}()

	copy(owner.Data, []byte("hello"))

	peer, err := Attach(name, 64)
	require.NoError(t, err)
	defer peer.Close()

	require.Equal(t, byte('h'), peer.Data[0])

	peer.Data[1] = 'E'
	require.Equal(t, byte('E'), owner.Data[1])
}

func TestCreateRejectsDuplicate(t *testing.T) {
	name := uniqueName(t) + "-dup"

	r, err := Create(name, 8)
	require.NoError(t, err)
	defer func() {
		_ = r.Close()
		_ = r.Unlink()
	}()

	_, err = Create(name, 8)
	require.Error(t, err)
	require.True(t, os.IsExist(err))
}

func TestAttachMissingFails(t *testing.T) {
	_, err := Attach(uniqueName(t)+"-missing", 8)
	require.Error(t, err)
	require.True(t, os.IsNotExist(err))
}
