package tick_test

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/opst/relmon/cmd/relmonctl/subcommands/internal/commandline"
	"github.com/opst/relmon/cmd/relmonctl/subcommands/tick"
	"github.com/youta-t/flarc"
)

var quiet = log.New(io.Discard, "", 0)

func TestTask(t *testing.T) {
	t.Run("it requests tick", func(t *testing.T) {
		called := 0
		svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet || r.URL.Path != "/relmon/api/tick" {
				t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			}
			called += 1
			w.Write([]byte(`{"message":"OK"}`))
		}))
		defer svr.Close()

		cl, _, _ := commandline.New("relmonctl tick", tick.Flag{Server: svr.URL + "/relmon/", Timeout: time.Second})
		if err := tick.Task(svr.Client())(context.Background(), quiet, cl, nil); err != nil {
			t.Fatal(err)
		}
		if called != 1 {
			t.Errorf("called %d times", called)
		}
	})

	t.Run("it fails when the service rejects", func(t *testing.T) {
		svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer svr.Close()

		cl, _, _ := commandline.New("relmonctl tick", tick.Flag{Server: svr.URL, Timeout: time.Second})
		if err := tick.Task(nil)(context.Background(), quiet, cl, nil); err == nil {
			t.Error("error is expected")
		}
	})

	t.Run("it requires server", func(t *testing.T) {
		cl, _, _ := commandline.New("relmonctl tick", tick.Flag{})
		if err := tick.Task(nil)(context.Background(), quiet, cl, nil); !errors.Is(err, flarc.ErrUsage) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
