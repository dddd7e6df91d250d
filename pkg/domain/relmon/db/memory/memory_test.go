package memory_test

import (
	"testing"

	"github.com/opst/relmon/pkg/domain"
	kdb "github.com/opst/relmon/pkg/domain/relmon/db"
	"github.com/opst/relmon/pkg/domain/relmon/db/dbtest"
	"github.com/opst/relmon/pkg/domain/relmon/db/memory"
)

func TestStore(t *testing.T) {
	dbtest.Run(t, func(_ *testing.T, initial ...domain.RelMon) kdb.RelMonInterface {
		return memory.New(initial...)
	})
}
