package auth

import "fmt"

type ErrorKind int

const (
	// KindRemote is an error payload returned by the OAuth server.
	KindRemote ErrorKind = iota + 1
	// KindEmptyToken is a successful reply without an access token.
	KindEmptyToken
	// KindHTTP is a non-2xx reply.
	KindHTTP
	// KindNetwork is a failure without any reply.
	KindNetwork
)

func (k ErrorKind) String() string {
	switch k {
	case KindRemote:
		return "remote"
	case KindEmptyToken:
		return "empty_token"
	case KindHTTP:
		return "http"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Error is returned by Client.FetchToken.
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
	case KindRemote:
		return fmt.Sprintf("authorization error: %s", e.Message)
	case KindEmptyToken:
		return "authorization error: empty access token"
	case KindHTTP:
		return fmt.Sprintf("authorization error (%d): %s", e.StatusCode, e.Message)
	case KindNetwork:
		return fmt.Sprintf("network error while fetching token: %v", e.Err)
	default:
		return fmt.Sprintf("authorization error: %v", e.Err)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
