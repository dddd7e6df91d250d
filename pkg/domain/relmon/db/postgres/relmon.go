// Package postgres stores RelMon documents in postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	dberrors "github.com/opst/relmon/pkg/db/errors"
	kpool "github.com/opst/relmon/pkg/db/postgres/pool"
	"github.com/opst/relmon/pkg/domain"
	kdb "github.com/opst/relmon/pkg/domain/relmon/db"
	xe "github.com/opst/relmon/pkg/errors"
)

const table = "relmon"

type relmonPG struct {
	pool kpool.Pool
}

var _ kdb.RelMonInterface = &relmonPG{}

func New(pool kpool.Pool) kdb.RelMonInterface {
	return &relmonPG{pool: pool}
}

func document(relmon domain.RelMon) (pgtype.JSONB, error) {
	b, err := json.Marshal(relmon)
	if err != nil {
		return pgtype.JSONB{}, err
	}
	return pgtype.JSONB{Bytes: b, Status: pgtype.Present}, nil
}

func scan(rows pgx.Rows) ([]domain.RelMon, error) {
	defer rows.Close()
	ret := []domain.RelMon{}
	for rows.Next() {
		var doc pgtype.JSONB
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var r domain.RelMon
		if err := json.Unmarshal(doc.Bytes, &r); err != nil {
			return nil, xe.WrapWithNote("broken document", err)
		}
		ret = append(ret, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (m *relmonPG) query(ctx context.Context, sql string, args ...any) ([]domain.RelMon, error) {
	rows, err := m.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	ret, err := scan(rows)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return ret, nil
}

func (m *relmonPG) Get(ctx context.Context, id string) (domain.RelMon, error) {
	found, err := m.query(ctx, `SELECT "document" FROM "relmon" WHERE "id" = $1`, id)
	if err != nil {
		return domain.RelMon{}, err
	}
	if len(found) == 0 {
		return domain.RelMon{}, dberrors.Missing{Table: table, Identity: id}
	}
	return found[0], nil
}

func (m *relmonPG) GetByStatus(ctx context.Context, status ...domain.RelMonStatus) ([]domain.RelMon, error) {
	st := make([]string, len(status))
	for i, s := range status {
		st[i] = string(s)
	}
	return m.query(
		ctx,
		`SELECT "document" FROM "relmon" WHERE "status" = ANY($1) ORDER BY length("id"), "id"`,
		st,
	)
}

func (m *relmonPG) GetByCondorStatus(ctx context.Context, status domain.CondorStatus) ([]domain.RelMon, error) {
	return m.query(
		ctx,
		`SELECT "document" FROM "relmon" WHERE "condor_status" = $1 ORDER BY length("id"), "id"`,
		string(status),
	)
}

func (m *relmonPG) GetByName(ctx context.Context, name string) ([]domain.RelMon, error) {
	return m.query(
		ctx,
		`SELECT "document" FROM "relmon" WHERE "name" = $1 ORDER BY length("id"), "id"`,
		name,
	)
}

func (m *relmonPG) Create(ctx context.Context, relmon domain.RelMon) error {
	doc, err := document(relmon)
	if err != nil {
		return xe.Wrap(err)
	}
	if _, err := m.pool.Exec(
		ctx,
		`
		INSERT INTO "relmon" ("id", "name", "status", "condor_status", "document")
		VALUES ($1, $2, $3, $4, $5)
		`,
		relmon.Id, relmon.Name, string(relmon.Status), string(relmon.CondorStatus), doc,
	); err != nil {
		if pgerr := new(pgconn.PgError); errors.As(err, &pgerr) && pgerr.Code == pgerrcode.UniqueViolation {
			return dberrors.Conflict{Table: table, Identity: relmon.Id}
		}
		return xe.Wrap(err)
	}
	return nil
}

func (m *relmonPG) Update(ctx context.Context, relmon domain.RelMon) error {
	doc, err := document(relmon)
	if err != nil {
		return xe.Wrap(err)
	}
	tag, err := m.pool.Exec(
		ctx,
		`
		UPDATE "relmon"
		SET "name" = $2, "status" = $3, "condor_status" = $4, "document" = $5, "updated_at" = now()
		WHERE "id" = $1
		`,
		relmon.Id, relmon.Name, string(relmon.Status), string(relmon.CondorStatus), doc,
	)
	if err != nil {
		return xe.Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return dberrors.Missing{Table: table, Identity: relmon.Id}
	}
	return nil
}

func (m *relmonPG) Delete(ctx context.Context, id string) error {
	if _, err := m.pool.Exec(ctx, `DELETE FROM "relmon" WHERE "id" = $1`, id); err != nil {
		return xe.Wrap(err)
	}
	return nil
}

func (m *relmonPG) List(ctx context.Context, query domain.ListQuery, page int, pageSize int) ([]domain.RelMon, int, error) {
	where := []string{}
	args := []any{}
	switch {
	case query.Status != "":
		args = append(args, string(query.Status))
		where = append(where, fmt.Sprintf(`"status" = $%d`, len(args)))
	case query.Id != "":
		args = append(args, query.Id)
		where = append(where, fmt.Sprintf(`"id" = $%d`, len(args)))
	case query.NamePattern != "":
		args = append(args, kdb.LikePattern(query.NamePattern))
		where = append(where, fmt.Sprintf(`"name" ILIKE $%d ESCAPE '\'`, len(args)))
	}

	cond := ""
	if len(where) != 0 {
		cond = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := m.pool.QueryRow(
		ctx, `SELECT count(*) FROM "relmon" `+cond, args...,
	).Scan(&total); err != nil {
		return nil, 0, xe.Wrap(err)
	}

	sql := `SELECT "document" FROM "relmon" ` + cond + ` ORDER BY length("id") DESC, "id" DESC`
	if 0 < pageSize {
		args = append(args, pageSize, max(page, 0)*pageSize)
		sql += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	found, err := m.query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	return found, total, nil
}
