package constant

const (
	// HeaderUserAgent is the HTTP User-Agent header key.
	HeaderUserAgent = "User-Agent"
	// HeaderID is the request identifier header key.
	HeaderID = "X-Request-Id"
	// HeaderTraceparent is the W3C traceparent header key.
	HeaderTraceparent = "Traceparent"
	// IdempotencyKey carries the provisional operation id on submits.
	IdempotencyKey = "Idempotency-Key"
	// IdempotencyReplayed signals whether a submit was replayed by the server.
	IdempotencyReplayed = "X-Idempotency-Replayed"
	// Authorization is the HTTP Authorization header key.
	Authorization = "Authorization"
	// Bearer is the HTTP Bearer auth scheme token.
	Bearer = "Bearer"
	// HeaderContentType is the HTTP Content-Type header key.
	HeaderContentType = "Content-Type"
	// ContentTypeJSON is the only body encoding the payments service speaks.
	ContentTypeJSON = "application/json"
)
