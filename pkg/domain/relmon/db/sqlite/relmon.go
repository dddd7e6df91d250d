// Package sqlite stores RelMon documents in a SQLite file, for single host deployments.
package sqlite

import (
	"context"
	"encoding/json"
	"time"

	"github.com/glebarez/sqlite"
	dberrors "github.com/opst/relmon/pkg/db/errors"
	"github.com/opst/relmon/pkg/domain"
	kdb "github.com/opst/relmon/pkg/domain/relmon/db"
	xe "github.com/opst/relmon/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const table = "relmon"

type record struct {
	Id           string `gorm:"primaryKey"`
	Name         string `gorm:"index"`
	Status       string `gorm:"index"`
	CondorStatus string `gorm:"index"`
	Document     string `gorm:"type:text"`
	UpdatedAt    time.Time
}

func (record) TableName() string {
	return table
}

func toRecord(relmon domain.RelMon) (record, error) {
	doc, err := json.Marshal(relmon)
	if err != nil {
		return record{}, err
	}
	return record{
		Id:           relmon.Id,
		Name:         relmon.Name,
		Status:       string(relmon.Status),
		CondorStatus: string(relmon.CondorStatus),
		Document:     string(doc),
		UpdatedAt:    time.Now(),
	}, nil
}

func fromRecords(rs []record) ([]domain.RelMon, error) {
	ret := make([]domain.RelMon, 0, len(rs))
	for _, r := range rs {
		var relmon domain.RelMon
		if err := json.Unmarshal([]byte(r.Document), &relmon); err != nil {
			return nil, xe.WrapWithNote("broken document of "+r.Id, err)
		}
		ret = append(ret, relmon)
	}
	return ret, nil
}

type relmonSQLite struct {
	db *gorm.DB
}

var _ kdb.RelMonInterface = &relmonSQLite{}

// Open opens (or creates) the database file and migrates its table.
func Open(path string) (kdb.RelMonInterface, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, xe.Wrap(err)
	}
	if err := db.AutoMigrate(&record{}); err != nil {
		return nil, xe.Wrap(err)
	}
	return &relmonSQLite{db: db}, nil
}

const newestLast = "length(id), id"

func (s *relmonSQLite) find(ctx context.Context, query *gorm.DB) ([]domain.RelMon, error) {
	var rs []record
	if err := query.WithContext(ctx).Find(&rs).Error; err != nil {
		return nil, xe.Wrap(err)
	}
	return fromRecords(rs)
}

func (s *relmonSQLite) Get(ctx context.Context, id string) (domain.RelMon, error) {
	found, err := s.find(ctx, s.db.Where("id = ?", id))
	if err != nil {
		return domain.RelMon{}, err
	}
	if len(found) == 0 {
		return domain.RelMon{}, dberrors.Missing{Table: table, Identity: id}
	}
	return found[0], nil
}

func (s *relmonSQLite) GetByStatus(ctx context.Context, status ...domain.RelMonStatus) ([]domain.RelMon, error) {
	st := make([]string, len(status))
	for i, v := range status {
		st[i] = string(v)
	}
	return s.find(ctx, s.db.Where("status IN ?", st).Order(newestLast))
}

func (s *relmonSQLite) GetByCondorStatus(ctx context.Context, status domain.CondorStatus) ([]domain.RelMon, error) {
	return s.find(ctx, s.db.Where("condor_status = ?", string(status)).Order(newestLast))
}

func (s *relmonSQLite) GetByName(ctx context.Context, name string) ([]domain.RelMon, error) {
	return s.find(ctx, s.db.Where("name = ?", name).Order(newestLast))
}

func (s *relmonSQLite) Create(ctx context.Context, relmon domain.RelMon) error {
	r, err := toRecord(relmon)
	if err != nil {
		return xe.Wrap(err)
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&r)
	if res.Error != nil {
		return xe.Wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return dberrors.Conflict{Table: table, Identity: relmon.Id}
	}
	return nil
}

func (s *relmonSQLite) Update(ctx context.Context, relmon domain.RelMon) error {
	r, err := toRecord(relmon)
	if err != nil {
		return xe.Wrap(err)
	}
	res := s.db.WithContext(ctx).Model(&record{}).Where("id = ?", r.Id).Updates(map[string]any{
		"name":          r.Name,
		"status":        r.Status,
		"condor_status": r.CondorStatus,
		"document":      r.Document,
		"updated_at":    r.UpdatedAt,
	})
	if res.Error != nil {
		return xe.Wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return dberrors.Missing{Table: table, Identity: relmon.Id}
	}
	return nil
}

func (s *relmonSQLite) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&record{}).Error; err != nil {
		return xe.Wrap(err)
	}
	return nil
}

func (s *relmonSQLite) List(ctx context.Context, query domain.ListQuery, page int, pageSize int) ([]domain.RelMon, int, error) {
	selected := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&record{})
		switch {
		case query.Status != "":
			return q.Where("status = ?", string(query.Status))
		case query.Id != "":
			return q.Where("id = ?", query.Id)
		case query.NamePattern != "":
			return q.Where(`name LIKE ? ESCAPE '\'`, kdb.LikePattern(query.NamePattern))
		}
		return q
	}

	var total int64
	if err := selected().Count(&total).Error; err != nil {
		return nil, 0, xe.Wrap(err)
	}

	q := selected().Order("length(id) DESC, id DESC")
	if 0 < pageSize {
		q = q.Limit(pageSize).Offset(max(page, 0) * pageSize)
	}
	found, err := s.find(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	return found, int(total), nil
}
