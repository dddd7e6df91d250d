package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	apierr "github.com/opst/relmon/pkg/api/errors"
	"github.com/opst/relmon/pkg/controller"
	"github.com/opst/relmon/pkg/domain"
)

// DefaultPageSize is the page size of listing when limit is not given.
const DefaultPageSize = 10

// Controller is what handlers need from the controller.
type Controller interface {
	Create(ctx context.Context, relmon domain.RelMon, user domain.UserInfo) (domain.RelMon, error)
	Edit(ctx context.Context, edited domain.RelMon, user domain.UserInfo) error
	EnqueueReset(id string, user domain.UserInfo) bool
	EnqueueDelete(id string, user domain.UserInfo) bool
	Update(ctx context.Context, id string, status domain.RelMonStatus, categories []domain.Category) error
	Get(ctx context.Context, id string) (domain.RelMon, error)
	List(ctx context.Context, query domain.ListQuery, page int, pageSize int) ([]domain.RelMon, int, error)
	Trigger()
}

var _ Controller = &controller.Controller{}

// Message is the response of mutating requests.
type Message struct {
	Message string `json:"message"`
	Id      string `json:"id,omitempty"`
}

func ok(c echo.Context, id string) error {
	return c.JSON(http.StatusOK, Message{Message: "OK", Id: id})
}

func decodeJSON(c echo.Context, v any) error {
	req := c.Request()
	ctype, _, _ := mime.ParseMediaType(req.Header.Get(echo.HeaderContentType))
	if ctype != echo.MIMEApplicationJSON {
		return apierr.BadRequest("unexpected content type. it should be application/json", nil)
	}
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		return apierr.BadRequest("can not understand the requested json", err)
	}
	return nil
}

// ParseId reads an id given as JSON string or number.
func ParseId(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", errors.New("id is required")
	}

	var num json.Number
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		num = json.Number(strings.TrimSpace(s))
	} else if err := json.Unmarshal(raw, &num); err != nil {
		return "", err
	}

	id, err := num.Int64()
	if err != nil {
		return "", errors.New("id should be an integer")
	}
	return strconv.FormatInt(id, 10), nil
}

// CreateHandler creates a RelMon owned by the requester.
func CreateHandler(ctrl Controller) echo.HandlerFunc {
	return func(c echo.Context) error {
		relmon := domain.RelMon{}
		if err := decodeJSON(c, &relmon); err != nil {
			return err
		}
		if strings.TrimSpace(relmon.Name) == "" {
			return apierr.BadRequest("name is required", nil)
		}

		req := c.Request()
		created, err := ctrl.Create(req.Context(), relmon, UserOf(req).UserInfo)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrInvalid):
			return apierr.BadRequest("fix the RelMon", err)
		case errors.Is(err, domain.ErrConflict):
			return apierr.Unprocessable(
				"RelMon with the same name or id exists",
				apierr.WithAdvice("use another name"), apierr.WithError(err),
			)
		default:
			return apierr.InternalServerError(err)
		}

		c.Logger().Infof("%s is created by %s", created, created.UserInfo)
		return ok(c, created.Id)
	}
}

// EditHandler changes a RelMon.
func EditHandler(ctrl Controller) echo.HandlerFunc {
	return func(c echo.Context) error {
		relmon := struct {
			domain.RelMon
			Id json.RawMessage `json:"id"`
		}{}
		if err := decodeJSON(c, &relmon); err != nil {
			return err
		}
		id, err := ParseId(relmon.Id)
		if err != nil {
			return apierr.BadRequest("specify id of RelMon", err)
		}
		relmon.RelMon.Id = id

		req := c.Request()
		err = ctrl.Edit(req.Context(), relmon.RelMon, UserOf(req).UserInfo)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrMissing):
			return apierr.NotFound("RelMon "+id+" is not found", err)
		case errors.Is(err, domain.ErrConflict):
			return apierr.Conflict(
				"other RelMon has the same name",
				apierr.WithAdvice("use another name"), apierr.WithError(err),
			)
		case errors.Is(err, domain.ErrInvalid):
			return apierr.BadRequest("fix the RelMon", err)
		default:
			return apierr.InternalServerError(err)
		}
		return ok(c, id)
	}
}

type idRequest struct {
	Id json.RawMessage `json:"id"`
}

func enqueueHandler(ctrl Controller, enqueue func(id string, user domain.UserInfo) bool, verb string) echo.HandlerFunc {
	return func(c echo.Context) error {
		body := idRequest{}
		if err := decodeJSON(c, &body); err != nil {
			return err
		}
		id, err := ParseId(body.Id)
		if err != nil {
			return apierr.BadRequest("specify id of RelMon", err)
		}

		req := c.Request()
		if _, err := ctrl.Get(req.Context(), id); errors.Is(err, domain.ErrMissing) {
			return apierr.NotFound("RelMon "+id+" is not found", err)
		} else if err != nil {
			return apierr.InternalServerError(err)
		}

		user := UserOf(req).UserInfo
		if enqueue(id, user) {
			c.Logger().Infof("RelMon %s is going to be %s by %s", id, verb, user)
		}
		return ok(c, id)
	}
}

// ResetHandler requests to reset a RelMon. It is done in the next tick.
func ResetHandler(ctrl Controller) echo.HandlerFunc {
	return enqueueHandler(ctrl, ctrl.EnqueueReset, "reset")
}

// DeleteHandler requests to delete a RelMon. It is done in the next tick.
func DeleteHandler(ctrl Controller) echo.HandlerFunc {
	return enqueueHandler(ctrl, ctrl.EnqueueDelete, "deleted")
}

// UpdateHandler receives progress reported by workers.
func UpdateHandler(ctrl Controller) echo.HandlerFunc {
	return func(c echo.Context) error {
		body := struct {
			Id         json.RawMessage     `json:"id"`
			Status     domain.RelMonStatus `json:"status"`
			Categories []domain.Category   `json:"categories"`
		}{}
		if err := decodeJSON(c, &body); err != nil {
			return err
		}
		id, err := ParseId(body.Id)
		if err != nil {
			return apierr.BadRequest("specify id of RelMon", err)
		}
		if body.Status == "" {
			return apierr.BadRequest("status is required", nil)
		}

		err = ctrl.Update(c.Request().Context(), id, body.Status, body.Categories)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrMissing):
			return apierr.NotFound("RelMon "+id+" is not found", err)
		case errors.Is(err, controller.ErrStale):
			return apierr.Conflict(
				"RelMon "+id+" is not running",
				apierr.WithAdvice("the job may be reset"), apierr.WithError(err),
			)
		default:
			return apierr.InternalServerError(err)
		}
		return ok(c, id)
	}
}

// TickHandler wakes the controller.
func TickHandler(ctrl Controller) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctrl.Trigger()
		return ok(c, "")
	}
}

func intParam(c echo.Context, name string, def int) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apierr.BadRequest(name+" should be a non-negative integer", err)
	}
	return n, nil
}

// ListHandler lists RelMons, newest first.
//
// Query q is, a status name, an id, or a part of name.
func ListHandler(ctrl Controller) echo.HandlerFunc {
	return func(c echo.Context) error {
		page, err := intParam(c, "page", 0)
		if err != nil {
			return err
		}
		limit, err := intParam(c, "limit", DefaultPageSize)
		if err != nil {
			return err
		}
		if limit == 0 {
			limit = DefaultPageSize
		}

		ctx := c.Request().Context()
		q := strings.TrimSpace(c.QueryParam("q"))

		var relmons []domain.RelMon
		total := 0
		if q == "" {
			relmons, total, err = ctrl.List(ctx, domain.ListQuery{}, page, limit)
		} else if status, serr := domain.AsRelMonStatus(strings.ToLower(q)); serr == nil {
			relmons, total, err = ctrl.List(ctx, domain.ListQuery{Status: status}, page, limit)
		} else {
			relmons, total, err = ctrl.List(ctx, domain.ListQuery{Id: q}, page, limit)
			if err == nil && total == 0 {
				relmons, total, err = ctrl.List(ctx, domain.ListQuery{NamePattern: "*" + q + "*"}, page, limit)
			}
		}
		if err != nil {
			return apierr.InternalServerError(err)
		}

		resp := Page{Data: make([]RelMonView, 0, len(relmons)), TotalRows: total, PageSize: limit}
		for _, r := range relmons {
			resp.Data = append(resp.Data, View(r))
		}
		return c.JSON(http.StatusOK, resp)
	}
}
