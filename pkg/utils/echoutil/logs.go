package echoutil

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// LogHandlerFunc logs each request and its response with latency.
//
// Request id is taken from the response header set by middleware.RequestID, if any.
func LogHandlerFunc(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		meth := c.Request().Method
		path := c.Request().URL
		BEGIN := time.Now()
		rid := c.Response().Header().Get(echo.HeaderXRequestID)
		c.Logger().Infof(
			"< request [%s] @[%s] %s %s", rid, BEGIN, meth, path,
		)

		var err error

		defer func() {
			END := time.Now()
			c.Logger().Infof(
				"> response [%s] @[%s] status = %d (for request @[%s] %s %s) in %v / error = %+v",
				rid, END, c.Response().Status, BEGIN, meth, path, END.Sub(BEGIN), err,
			)
		}()

		err = next(c)
		return err
	}
}

// ParseLevel reads log level name: debug, info, warn, error or off.
//
// Empty string is warn. For unknown names, it returns warn and false.
func ParseLevel(level string) (log.Lvl, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DEBUG, true
	case "info":
		return log.INFO, true
	case "warn", "":
		return log.WARN, true
	case "error":
		return log.ERROR, true
	case "off":
		return log.OFF, true
	default:
		return log.WARN, false
	}
}

type leveled interface {
	SetLevel(log.Lvl)
	Warnf(string, ...any)
}

// SetLevel sets level of logger by name. Unknown names fall back to warn.
func SetLevel(logger leveled, level string) {
	lvl, ok := ParseLevel(level)
	logger.SetLevel(lvl)
	if !ok {
		logger.Warnf("unknown loglevel: %s . fall-backed to warn", level)
	}
}
