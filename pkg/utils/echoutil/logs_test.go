package echoutil_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/opst/relmon/pkg/utils/echoutil"
)

func TestParseLevel(t *testing.T) {
	for in, expected := range map[string]struct {
		lvl log.Lvl
		ok  bool
	}{
		"debug":   {log.DEBUG, true},
		"INFO":    {log.INFO, true},
		" warn ":  {log.WARN, true},
		"":        {log.WARN, true},
		"error":   {log.ERROR, true},
		"off":     {log.OFF, true},
		"verbose": {log.WARN, false},
	} {
		lvl, ok := echoutil.ParseLevel(in)
		if lvl != expected.lvl || ok != expected.ok {
			t.Errorf("%q: expected (%d, %v), actual (%d, %v)", in, expected.lvl, expected.ok, lvl, ok)
		}
	}
}

func TestSetLevel(t *testing.T) {
	logger := log.New("test")
	buf := new(bytes.Buffer)
	logger.SetOutput(buf)

	echoutil.SetLevel(logger, "error")
	if logger.Level() != log.ERROR {
		t.Errorf("level: %d", logger.Level())
	}

	echoutil.SetLevel(logger, "verbose")
	if logger.Level() != log.WARN {
		t.Errorf("level: %d", logger.Level())
	}
	if !strings.Contains(buf.String(), "unknown loglevel: verbose") {
		t.Errorf("fall back should be warned: %s", buf.String())
	}
}

func TestLogHandlerFunc(t *testing.T) {
	e := echo.New()
	buf := new(bytes.Buffer)
	e.Logger.SetOutput(buf)
	e.Logger.SetLevel(log.INFO)

	req := httptest.NewRequest(http.MethodGet, "/api/get_relmons", nil)
	resp := httptest.NewRecorder()
	c := e.NewContext(req, resp)
	c.Response().Header().Set(echo.HeaderXRequestID, "req-1")

	err := echoutil.LogHandlerFunc(func(c echo.Context) error {
		return c.NoContent(http.StatusTeapot)
	})(c)
	if err != nil {
		t.Fatal(err)
	}

	logs := buf.String()
	for _, want := range []string{"< request [req-1]", "> response [req-1]", "status = 418", "/api/get_relmons"} {
		if !strings.Contains(logs, want) {
			t.Errorf("log does not have %q:\n%s", want, logs)
		}
	}
}
