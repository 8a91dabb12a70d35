package replay

import "errors"

var (
	// ErrMissingURL is returned when either target URL is empty.
	ErrMissingURL = errors.New("missing target url")
	// ErrUnsupportedMethod is returned for methods other than GET and POST.
	ErrUnsupportedMethod = errors.New("unsupported method")
	// ErrTransport wraps timeouts and transport failures from the HTTP client.
	ErrTransport = errors.New("transport error")
)
