package middlewares

// CtxRequestID is the gin context key holding the request id. handlers reads
// the same key when rendering error envelopes.
const CtxRequestID = "request_id"
