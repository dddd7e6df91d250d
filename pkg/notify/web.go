package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Web posts events as JSON to URLs.
//
// Every URL is called even if some of them fail.
// Responses other than 2xx are failures.
type Web struct {
	URLs   []*url.URL
	Client *http.Client
}

func (w Web) client() *http.Client {
	if w.Client == nil {
		return http.DefaultClient
	}
	return w.Client
}

func (w Web) send(ctx context.Context, u *url.URL, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return errors.Join(err, ErrNotifyFailed)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client().Do(req)
	if err != nil {
		return errors.Join(err, ErrNotifyFailed)
	}
	defer resp.Body.Close()

	if 200 <= resp.StatusCode && resp.StatusCode < 300 {
		return nil
	}

	ctype := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ctype, "text/") && !strings.Contains(ctype, "json") {
		return fmt.Errorf(
			"%w (%s %d, Content-Type: %s)", ErrNotifyFailed, u, resp.StatusCode, ctype,
		)
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf(
		"%w (%s %d, Content-Type: %s): %s", ErrNotifyFailed, u, resp.StatusCode, ctype, body,
	)
}

func (w Web) Notify(ctx context.Context, ev Event) error {
	if len(w.URLs) == 0 {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	errs := []error{}
	for _, u := range w.URLs {
		if err := w.send(ctx, u, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
