package db

import (
	"context"

	"github.com/opst/relmon/pkg/domain"
)

// RelMonInterface stores RelMon documents.
//
// Every write is the whole document, keyed by RelMon id. Writes are last-writer-wins.
type RelMonInterface interface {
	// get a RelMon by its id.
	//
	// Returns
	//
	// - domain.RelMon
	//
	// - error: ErrMissing (wrapped) when there are no such RelMon.
	Get(ctx context.Context, id string) (domain.RelMon, error)

	// get RelMons in any of given statuses, ordered by id.
	GetByStatus(ctx context.Context, status ...domain.RelMonStatus) ([]domain.RelMon, error)

	// get RelMons whose condor status is the given one, ordered by id.
	GetByCondorStatus(ctx context.Context, status domain.CondorStatus) ([]domain.RelMon, error)

	// get RelMons having exactly the name.
	GetByName(ctx context.Context, name string) ([]domain.RelMon, error)

	// register a new RelMon.
	//
	// Returns
	//
	// - error: ErrConflict (wrapped) when the id is taken.
	Create(ctx context.Context, relmon domain.RelMon) error

	// replace the whole document of the RelMon.
	//
	// The copy passed can be stale; it overwrites anyway.
	//
	// Returns
	//
	// - error: ErrMissing (wrapped) when the RelMon has been deleted.
	Update(ctx context.Context, relmon domain.RelMon) error

	// delete the RelMon.
	//
	// Deleting a missing RelMon is not an error.
	Delete(ctx context.Context, id string) error

	// list RelMons matching query, newest first.
	//
	// Args
	//
	// - query: selector.
	//
	// - page: 0-origin page number.
	//
	// - pageSize: RelMons per page. When it is not positive, all RelMons in one page.
	//
	// Returns
	//
	// - []domain.RelMon: RelMons in the page.
	//
	// - int: number of all RelMons matching query.
	//
	// - error
	List(ctx context.Context, query domain.ListQuery, page int, pageSize int) ([]domain.RelMon, int, error)
}
