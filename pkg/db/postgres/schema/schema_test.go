package schema_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/opst/relmon/pkg/db/postgres/pool/testenv"
	"github.com/opst/relmon/pkg/db/postgres/schema"
	"github.com/opst/relmon/pkg/utils/try"
)

func repository(t *testing.T, versions ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, v := range versions {
		if err := os.MkdirAll(filepath.Join(root, v), 0755); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestSchema_Latest(t *testing.T) {
	theory := func(versions []string, expected int) func(*testing.T) {
		return func(t *testing.T) {
			root := repository(t, versions...)
			if err := os.WriteFile(filepath.Join(root, "README"), []byte("not a version"), 0644); err != nil {
				t.Fatal(err)
			}
			testee := schema.New(nil, root)
			if got := try.To(testee.Latest()).OrFatal(t); got != expected {
				t.Errorf("latest: got %d, want %d", got, expected)
			}
		}
	}

	t.Run("empty repository", theory(nil, 0))
	t.Run("numbers are compared as numbers", theory([]string{"1", "2", "10"}, 10))
	t.Run("non-number directories are ignored", theory([]string{"1", "next"}, 1))
}

func TestSchema_Upgrade(t *testing.T) {
	ctx := context.Background()
	pool := testenv.GetPool(ctx, t)

	testee := schema.New(pool, filepath.Join("..", "..", "..", "..", "schema", "postgres"))
	latest := try.To(testee.Latest()).OrFatal(t)

	if err := testee.Upgrade(ctx); err != nil {
		t.Fatal(err)
	}
	if got := try.To(testee.Version(ctx)).OrFatal(t); got != latest {
		t.Errorf("version after upgrade: got %d, want %d", got, latest)
	}

	t.Run("upgrading again does nothing", func(t *testing.T) {
		if err := testee.Upgrade(ctx); err != nil {
			t.Fatal(err)
		}
		if got := try.To(testee.Version(ctx)).OrFatal(t); got != latest {
			t.Errorf("version: got %d, want %d", got, latest)
		}
	})

	t.Run("Context is canceled when a new version is added", func(t *testing.T) {
		root := repository(t, "1")
		testee := schema.New(pool, root)
		sctx, cancel := testee.Context(ctx)
		defer cancel()

		if err := os.Mkdir(filepath.Join(root, "999"), 0755); err != nil {
			t.Fatal(err)
		}
		<-sctx.Done()
		if cause := context.Cause(sctx); !errors.Is(cause, schema.ErrOutdated) {
			t.Errorf("unexpected cause: %v", cause)
		}
	})
}
