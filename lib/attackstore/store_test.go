package attackstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"ogwatch/lib/scrapers/game"
	"ogwatch/lib/telemetry"

	"github.com/stretchr/testify/require"
)

func testAttack(id string) game.Attack {
	return game.Attack{
		Id:          id,
		ArrivalTime: 1700000000,
		Origin:      "Planet A [1:203:4]",
		Destination: "Planet B [1:203:7]",
	}
}

func TestFilterNewIdempotent(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/attackstore")
	defer cleanup()

	store, err := NewStore(filepath.Join(t.TempDir(), "attacks.toml"))
	require.NoError(t, err)

	ctx := context.Background()

	fresh, err := store.FilterNew(ctx, "a@example.com", []game.Attack{testAttack("17")})
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	require.Equal(t, "17", fresh[0].Id)

	fresh, err = store.FilterNew(ctx, "a@example.com", []game.Attack{testAttack("17")})
	require.NoError(t, err)
	require.Empty(t, fresh)
}

func TestFilterNewPreservesOrder(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/attackstore")
	defer cleanup()

	store, err := NewStore(filepath.Join(t.TempDir(), "attacks.toml"))
	require.NoError(t, err)

	ctx := context.Background()

	_, err = store.FilterNew(ctx, "a@example.com", []game.Attack{testAttack("2")})
	require.NoError(t, err)

	fresh, err := store.FilterNew(ctx, "a@example.com", []game.Attack{
		testAttack("3"),
		testAttack("2"),
		testAttack("1"),
		testAttack("5"),
	})
	require.NoError(t, err)
	require.Len(t, fresh, 3)
	require.Equal(t, "3", fresh[0].Id)
	require.Equal(t, "1", fresh[1].Id)
	require.Equal(t, "5", fresh[2].Id)
}

func TestFilterNewPersistsAcrossReopen(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/attackstore")
	defer cleanup()

	path := filepath.Join(t.TempDir(), "attacks.toml")
	ctx := context.Background()

	store, err := NewStore(path)
	require.NoError(t, err)
	fresh, err := store.FilterNew(ctx, "a@example.com", []game.Attack{testAttack("42")})
	require.NoError(t, err)
	require.Len(t, fresh, 1)

	reopened, err := NewStore(path)
	require.NoError(t, err)
	fresh, err = reopened.FilterNew(ctx, "a@example.com", []game.Attack{testAttack("42")})
	require.NoError(t, err)
	require.Empty(t, fresh)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(contents), "42")
}

func TestFilterNewKeepsUsersSeparate(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/attackstore")
	defer cleanup()

	store, err := NewStore(filepath.Join(t.TempDir(), "attacks.toml"))
	require.NoError(t, err)

	ctx := context.Background()

	fresh, err := store.FilterNew(ctx, "a@example.com", []game.Attack{testAttack("9")})
	require.NoError(t, err)
	require.Len(t, fresh, 1)

	// a different user has not been notified of this attack yet
	fresh, err = store.FilterNew(ctx, "b@example.com", []game.Attack{testAttack("9")})
	require.NoError(t, err)
	require.Len(t, fresh, 1)
}

func TestFilterNewNothingToWrite(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/attackstore")
	defer cleanup()

	path := filepath.Join(t.TempDir(), "attacks.toml")
	store, err := NewStore(path)
	require.NoError(t, err)

	fresh, err := store.FilterNew(context.Background(), "a@example.com", nil)
	require.NoError(t, err)
	require.Empty(t, fresh)

	// an all-clear pass must not create the store file
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}
