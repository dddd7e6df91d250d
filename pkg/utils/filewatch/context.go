// Package filewatch ties lifetime of a context to files.
package filewatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

var ErrModified = errors.New("file is modified")

// Modified is the cause of contexts canceled by UntilModifyContext.
type Modified struct {
	Path string
	Op   fsnotify.Op
}

func (m *Modified) Error() string {
	return fmt.Sprintf("%s is updated (%s)", m.Path, m.Op.String())
}

func (m *Modified) Is(err error) bool {
	return err == ErrModified
}

// UntilModifyContext returns a context that is canceled
// when one of target files is written, created, removed, or renamed.
//
// Directories containing the files are watched, so replacing a file
// by rename (as editors and configmap updates do) is also caught.
// Changes only in mode are ignored.
//
// # Args
//
// - ctx: context.Context
//
// - targetFilePath ...string: file pathes to be watched.
//
// # Returns
//
// - context.Context: context that is canceled when one of target files is modified.
// Its cause is *Modified.
//
// - func(): cancel function.
//
// - error: error caused when it fails to start watching files.
//
// If error is not nil, both of the the context and the cancel function are nil.
func UntilModifyContext(ctx context.Context, targetFilePath ...string) (context.Context, func(), error) {
	targets := map[string]struct{}{}
	dirs := map[string]struct{}{}
	for _, f := range targetFilePath {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, nil, err
		}
		targets[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	for d := range dirs {
		if err := w.Add(d); err != nil {
			w.Close()
			return nil, nil, err
		}
	}

	cctx, cancel := context.WithCancelCause(ctx)
	go func() {
		defer w.Close()

		for {
			select {
			case <-cctx.Done():
				return
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				cancel(fmt.Errorf("watching files: %w", err))
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Op == fsnotify.Chmod {
					continue
				}
				if _, ok := targets[filepath.Clean(event.Name)]; !ok {
					continue
				}
				cancel(&Modified{Path: event.Name, Op: event.Op})
				return
			}
		}
	}()

	return cctx, func() { cancel(nil) }, nil
}
