package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/opst/relmon/pkg/remote"
)

type Transfer struct {
	From string
	To   string
}

type Executor struct {
	Impl struct {
		Run      func(ctx context.Context, script remote.Script) (remote.Output, error)
		Upload   func(ctx context.Context, localPath, remotePath string) error
		Download func(ctx context.Context, remotePath, localPath string) error
	}

	Calls struct {
		Run      []remote.Script
		Upload   []Transfer
		Download []Transfer
		Close    uint
	}

	mu sync.Mutex
}

var _ remote.Executor = &Executor{}

func NewExecutor() *Executor {
	return &Executor{}
}

func (m *Executor) Run(ctx context.Context, script remote.Script) (remote.Output, error) {
	m.mu.Lock()
	m.Calls.Run = append(m.Calls.Run, script)
	m.mu.Unlock()

	if m.Impl.Run != nil {
		return m.Impl.Run(ctx, script)
	}
	panic(errors.New("it should not be called"))
}

func (m *Executor) Upload(ctx context.Context, localPath, remotePath string) error {
	m.mu.Lock()
	m.Calls.Upload = append(m.Calls.Upload, Transfer{From: localPath, To: remotePath})
	m.mu.Unlock()

	if m.Impl.Upload != nil {
		return m.Impl.Upload(ctx, localPath, remotePath)
	}
	panic(errors.New("it should not be called"))
}

func (m *Executor) Download(ctx context.Context, remotePath, localPath string) error {
	m.mu.Lock()
	m.Calls.Download = append(m.Calls.Download, Transfer{From: remotePath, To: localPath})
	m.mu.Unlock()

	if m.Impl.Download != nil {
		return m.Impl.Download(ctx, remotePath, localPath)
	}
	panic(errors.New("it should not be called"))
}

// Close counts calls and never fails.
func (m *Executor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls.Close += 1
	return nil
}
