package gigachat

import "fmt"

type ErrorKind int

const (
	// KindAuth wraps an *auth.Error from the token exchange.
	KindAuth ErrorKind = iota + 1
	// KindHTTP is a terminal non-2xx completion reply.
	KindHTTP
	// KindRemote is an error payload inside a 2xx completion reply.
	KindRemote
	// KindEmptyResponse is a reply with no usable response text.
	KindEmptyResponse
	// KindNetwork is a completion call that got no reply.
	KindNetwork
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindHTTP:
		return "http"
	case KindRemote:
		return "remote"
	case KindEmptyResponse:
		return "empty_response"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Error is the single failure type returned by Client.SendMessage. Its
// message is suitable for showing to the user.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch e.Kind {
	case KindAuth:
		if e.Err == nil {
			return "authorization error"
		}
		return e.Err.Error()
	case KindHTTP:
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	case KindRemote:
		return e.Message
	case KindEmptyResponse:
		return "empty response from GigaChat"
	case KindNetwork:
		return fmt.Sprintf("network error: %v", e.Err)
	default:
		return fmt.Sprintf("gigachat: %v", e.Err)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
