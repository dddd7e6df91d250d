package common

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/opst/relmon/pkg/bundle"
	"github.com/opst/relmon/pkg/domain"
	xe "github.com/opst/relmon/pkg/errors"
	"github.com/youta-t/flarc"
)

// Task is a flarc task with a logger writing to stderr.
type Task[T any] func(
	ctx context.Context,
	logger *log.Logger,
	cl flarc.Commandline[T],
	params []any,
) error

func NewTask[T any](task Task[T]) flarc.Task[T] {
	return func(ctx context.Context, cl flarc.Commandline[T], params []any) error {
		logger := log.New(cl.Stderr(), "", log.LstdFlags)
		logger.SetPrefix(fmt.Sprintf("[%s] ", cl.Fullname()))
		return task(ctx, logger, cl, params)
	}
}

// ReadRelMon reads a job description.
func ReadRelMon(path string) (domain.RelMon, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return domain.RelMon{}, xe.WrapWithNote(path, err)
	}
	relmon := domain.RelMon{}
	if err := json.Unmarshal(b, &relmon); err != nil {
		return domain.RelMon{}, xe.WrapWithNote(path, err)
	}
	return relmon, nil
}

// WriteRelMon overwrites a job description in the same format as the bundle.
func WriteRelMon(path string, relmon domain.RelMon) error {
	b, err := bundle.Marshal(relmon)
	if err != nil {
		return xe.WrapWithNote(path, err)
	}
	if err := os.WriteFile(path, b, os.FileMode(0o644)); err != nil {
		return xe.WrapWithNote(path, err)
	}
	return nil
}
