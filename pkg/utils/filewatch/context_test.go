package filewatch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opst/relmon/pkg/utils/filewatch"
)

func waitCanceled(t *testing.T, ctx context.Context) {
	t.Helper()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context is not canceled")
	}
	if cause := context.Cause(ctx); !errors.Is(cause, filewatch.ErrModified) {
		t.Errorf("unexpected cause: %v", cause)
	}
}

func prepare(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	file := filepath.Join(dir, "relmond.yaml")
	if err := os.WriteFile(file, []byte("server: {}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return dir, file
}

func TestUntilModifyContext(t *testing.T) {
	theory := func(modify func(t *testing.T, dir, file string)) func(*testing.T) {
		return func(t *testing.T) {
			dir, file := prepare(t)
			ctx, cancel, err := filewatch.UntilModifyContext(context.Background(), file)
			if err != nil {
				t.Fatal(err)
			}
			defer cancel()

			if err := ctx.Err(); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			modify(t, dir, file)
			waitCanceled(t, ctx)
		}
	}

	t.Run("when the watched file is written, it cancels context", theory(func(t *testing.T, _, file string) {
		if err := os.WriteFile(file, []byte("server: {port: 80}\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}))

	t.Run("when the watched file is removed, it cancels context", theory(func(t *testing.T, _, file string) {
		if err := os.Remove(file); err != nil {
			t.Fatal(err)
		}
	}))

	t.Run("when the watched file is replaced by rename, it cancels context", theory(func(t *testing.T, dir, file string) {
		tmp := filepath.Join(dir, ".relmond.yaml.tmp")
		if err := os.WriteFile(tmp, []byte("server: {port: 80}\n"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.Rename(tmp, file); err != nil {
			t.Fatal(err)
		}
	}))
}

func TestUntilModifyContext_Ignored(t *testing.T) {
	t.Run("other files in the directory and mode changes do not cancel context", func(t *testing.T) {
		dir, file := prepare(t)
		ctx, cancel, err := filewatch.UntilModifyContext(context.Background(), file)
		if err != nil {
			t.Fatal(err)
		}
		defer cancel()

		if err := os.WriteFile(filepath.Join(dir, "other"), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chmod(file, 0600); err != nil {
			t.Fatal(err)
		}

		select {
		case <-ctx.Done():
			t.Fatalf("unexpected cancel: %v", context.Cause(ctx))
		case <-time.After(300 * time.Millisecond):
		}

		cancel()
		if cause := context.Cause(ctx); !errors.Is(cause, context.Canceled) {
			t.Errorf("unexpected cause: %v", cause)
		}
	})
}

func TestUntilModifyContext_Missing(t *testing.T) {
	if _, _, err := filewatch.UntilModifyContext(
		context.Background(), filepath.Join(t.TempDir(), "no", "such", "file"),
	); err == nil {
		t.Error("expected error, but got nil")
	}
}
