// Package errors annotates errors with the place they passed through.
//
//	return xe.Wrap(err)
//
// The message of a wrapped error reads like
//
//	controller.(*Controller).submit (submit.go:42) <- ssh: dial failed
//
// and each "<-" is one more hop toward the root cause.
package errors

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
)

// ErrWithCaller is an error which knows where it has been wrapped.
type ErrWithCaller struct {
	file     string
	line     int
	funcname string
	note     string
	err      error
}

func (e *ErrWithCaller) File() string {
	return e.file
}

func (e *ErrWithCaller) Line() int {
	return e.line
}

func (e *ErrWithCaller) Func() string {
	return e.funcname
}

func (e *ErrWithCaller) Error() string {
	loc := fmt.Sprintf("%s (%s:%d)", e.funcname, filepath.Base(e.file), e.line)
	if e.note != "" {
		loc = fmt.Sprintf("%s [%s]", loc, e.note)
	}
	return loc + " <- " + e.err.Error()
}

func (e *ErrWithCaller) Unwrap() error {
	return e.err
}

func New(text string) error {
	return wrap("", errors.New(text), 1)
}

// Errorf is fmt.Errorf with caller.
func Errorf(format string, args ...any) error {
	return wrap("", fmt.Errorf(format, args...), 1)
}

// Wrap annotates err with the caller. Wrap(nil) is nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return wrap("", err, 1)
}

// WrapWithNote is Wrap with a short note, e.g. the id of the entity in question.
func WrapWithNote(note string, err error) error {
	if err == nil {
		return nil
	}
	return wrap(note, err, 1)
}

func wrap(note string, err error, depth int) error {
	funcname := "(unknown)"
	pc, file, line, ok := runtime.Caller(depth + 1)
	if !ok {
		file = "?"
		line = -1
	} else if fn := runtime.FuncForPC(pc); fn != nil {
		funcname = filepath.Base(fn.Name())
	}

	return &ErrWithCaller{
		funcname: funcname,
		file:     file,
		line:     line,
		note:     note,
		err:      err,
	}
}
