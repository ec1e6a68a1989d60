package delivery

// ErrorKind classifies why an inbound frame was not delivered.
type ErrorKind string

const (
	KindInvalidPayload  ErrorKind = "invalid_payload"
	KindUnauthenticated ErrorKind = "unauthenticated"
	KindMissingReceiver ErrorKind = "missing_receiver"
	KindEmptyContent    ErrorKind = "empty_content"
	KindStore           ErrorKind = "store"
)

// Error is the result of a failed HandleInbound call. ClientMessage is safe
// to return to the sending connection; the underlying cause never is.
type Error struct {
	Kind          ErrorKind
	ClientMessage string
	cause         error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return string(e.Kind) + ": " + e.cause.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(kind ErrorKind, clientMessage string, cause error) *Error {
	return &Error{Kind: kind, ClientMessage: clientMessage, cause: cause}
}
