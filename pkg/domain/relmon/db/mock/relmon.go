package mock

import (
	"context"
	"errors"

	"github.com/opst/relmon/pkg/domain"
	kdb "github.com/opst/relmon/pkg/domain/relmon/db"
)

type CallLog[T any] []T

func (l CallLog[T]) Times() uint {
	return uint(len(l))
}

type ListArgs struct {
	Query    domain.ListQuery
	Page     int
	PageSize int
}

type RelMonInterface struct {
	Impl struct {
		Get               func(ctx context.Context, id string) (domain.RelMon, error)
		GetByStatus       func(ctx context.Context, status ...domain.RelMonStatus) ([]domain.RelMon, error)
		GetByCondorStatus func(ctx context.Context, status domain.CondorStatus) ([]domain.RelMon, error)
		GetByName         func(ctx context.Context, name string) ([]domain.RelMon, error)
		Create            func(ctx context.Context, relmon domain.RelMon) error
		Update            func(ctx context.Context, relmon domain.RelMon) error
		Delete            func(ctx context.Context, id string) error
		List              func(ctx context.Context, query domain.ListQuery, page int, pageSize int) ([]domain.RelMon, int, error)
	}

	Calls struct {
		Get               CallLog[string]
		GetByStatus       CallLog[[]domain.RelMonStatus]
		GetByCondorStatus CallLog[domain.CondorStatus]
		GetByName         CallLog[string]
		Create            CallLog[domain.RelMon]
		Update            CallLog[domain.RelMon]
		Delete            CallLog[string]
		List              CallLog[ListArgs]
	}
}

func NewRelMonInterface() *RelMonInterface {
	return &RelMonInterface{}
}

var _ kdb.RelMonInterface = &RelMonInterface{}

func (m *RelMonInterface) Get(ctx context.Context, id string) (domain.RelMon, error) {
	m.Calls.Get = append(m.Calls.Get, id)
	if m.Impl.Get != nil {
		return m.Impl.Get(ctx, id)
	}
	panic(errors.New("it should not be called"))
}

func (m *RelMonInterface) GetByStatus(ctx context.Context, status ...domain.RelMonStatus) ([]domain.RelMon, error) {
	m.Calls.GetByStatus = append(m.Calls.GetByStatus, status)
	if m.Impl.GetByStatus != nil {
		return m.Impl.GetByStatus(ctx, status...)
	}
	panic(errors.New("it should not be called"))
}

func (m *RelMonInterface) GetByCondorStatus(ctx context.Context, status domain.CondorStatus) ([]domain.RelMon, error) {
	m.Calls.GetByCondorStatus = append(m.Calls.GetByCondorStatus, status)
	if m.Impl.GetByCondorStatus != nil {
		return m.Impl.GetByCondorStatus(ctx, status)
	}
	panic(errors.New("it should not be called"))
}

func (m *RelMonInterface) GetByName(ctx context.Context, name string) ([]domain.RelMon, error) {
	m.Calls.GetByName = append(m.Calls.GetByName, name)
	if m.Impl.GetByName != nil {
		return m.Impl.GetByName(ctx, name)
	}
	panic(errors.New("it should not be called"))
}

func (m *RelMonInterface) Create(ctx context.Context, relmon domain.RelMon) error {
	m.Calls.Create = append(m.Calls.Create, relmon)
	if m.Impl.Create != nil {
		return m.Impl.Create(ctx, relmon)
	}
	panic(errors.New("it should not be called"))
}

func (m *RelMonInterface) Update(ctx context.Context, relmon domain.RelMon) error {
	m.Calls.Update = append(m.Calls.Update, relmon)
	if m.Impl.Update != nil {
		return m.Impl.Update(ctx, relmon)
	}
	panic(errors.New("it should not be called"))
}

func (m *RelMonInterface) Delete(ctx context.Context, id string) error {
	m.Calls.Delete = append(m.Calls.Delete, id)
	if m.Impl.Delete != nil {
		return m.Impl.Delete(ctx, id)
	}
	panic(errors.New("it should not be called"))
}

func (m *RelMonInterface) List(ctx context.Context, query domain.ListQuery, page int, pageSize int) ([]domain.RelMon, int, error) {
	m.Calls.List = append(m.Calls.List, ListArgs{Query: query, Page: page, PageSize: pageSize})
	if m.Impl.List != nil {
		return m.Impl.List(ctx, query, page, pageSize)
	}
	panic(errors.New("it should not be called"))
}
