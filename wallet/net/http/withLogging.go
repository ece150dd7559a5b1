package http

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jose254W/cards/wallet"
	constant "github.com/jose254W/cards/wallet/constants"
	"github.com/jose254W/cards/wallet/log"
	libOpentelemetry "github.com/jose254W/cards/wallet/opentelemetry"
)

// RequestInfo holds the access log data of one request.
type RequestInfo struct {
	Method        string
	URI           string
	Referer       string
	RemoteAddress string
	Status        int
	Date          time.Time
	Duration      time.Duration
	UserAgent     string
	RequestID     string
	Protocol      string
	Size          int
}

// NewRequestInfo creates an instance of RequestInfo.
func NewRequestInfo(c *fiber.Ctx) *RequestInfo {
	referer := "-"
	if c.Get(fiber.HeaderReferer) != "" {
		referer = c.Get(fiber.HeaderReferer)
	}

	return &RequestInfo{
		RequestID:     c.Get(constant.HeaderID),
		Method:        c.Method(),
		URI:           c.OriginalURL(),
		Referer:       referer,
		UserAgent:     c.Get(constant.HeaderUserAgent),
		RemoteAddress: c.IP(),
		Protocol:      c.Protocol(),
		Date:          time.Now().UTC(),
	}
}

// CLFString produces a log entry similar to Common Log Format (CLF).
// Ref: https://httpd.apache.org/docs/trunk/logs.html#common
func (r *RequestInfo) CLFString() string {
	return strings.Join([]string{
		r.RemoteAddress,
		"-",
		"-",
		r.Protocol,
		r.Date.Format("[02/Jan/2006:15:04:05 -0700]"),
		`"` + r.Method + " " + r.URI + `"`,
		strconv.Itoa(r.Status),
		strconv.Itoa(r.Size),
		r.Referer,
		r.UserAgent,
	}, " ")
}

// String implements fmt.Stringer.
func (r *RequestInfo) String() string {
	return r.CLFString()
}

// Finish sets duration, status and size from the response of c.
func (r *RequestInfo) Finish(c *fiber.Ctx) {
	r.Duration = time.Now().UTC().Sub(r.Date)
	r.Status = c.Response().StatusCode()
	r.Size = len(c.Response().Body())
}

type logMiddleware struct {
	logger log.Logger
}

// LogMiddlewareOption configures WithHTTPLogging.
type LogMiddlewareOption func(l *logMiddleware)

// WithCustomLogger sets the access logger.
func WithCustomLogger(logger log.Logger) LogMiddlewareOption {
	return func(l *logMiddleware) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithHTTPLogging assigns a request id when the caller sent none, stores a
// request scoped logger and the incoming trace context in the user context,
// and writes one access log line per request. /health is not logged.
func WithHTTPLogging(opts ...LogMiddlewareOption) fiber.Handler {
	mid := &logMiddleware{logger: log.NewNop()}

	for _, opt := range opts {
		opt(mid)
	}

	return func(c *fiber.Ctx) error {
		if c.Path() == "/health" {
			return c.Next()
		}

		headerID := setRequestHeaderID(c)
		info := NewRequestInfo(c)

		logger := mid.logger.With(log.String("request_id", headerID))

		ctx := libOpentelemetry.ExtractHTTPContext(c)
		ctx = wallet.ContextWithHeaderID(ctx, headerID)
		ctx = wallet.ContextWithLogger(ctx, logger)
		c.SetUserContext(ctx)

		err := c.Next()

		info.Finish(c)

		logger.Log(ctx, log.LevelInfo, info.CLFString(),
			log.Int("status", info.Status),
			log.Duration("duration", info.Duration),
		)

		return err
	}
}

func setRequestHeaderID(c *fiber.Ctx) string {
	headerID := strings.TrimSpace(c.Get(constant.HeaderID))
	if headerID == "" {
		headerID = uuid.NewString()
		c.Request().Header.Set(constant.HeaderID, headerID)
	}

	c.Set(constant.HeaderID, headerID)

	return headerID
}
