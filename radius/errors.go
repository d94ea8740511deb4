package radius

import "fmt"

// ErrorKind discriminates the failure taxonomy required by the wire
// protocol: each kind is handled differently by callers (drop, log,
// surface to the application, ...).
type ErrorKind int

const (
	// MalformedPacket covers header length mismatches, attribute TLV
	// overrun, and bad declared lengths.
	MalformedPacket ErrorKind = iota
	// AuthenticatorInvalid covers response or accounting authenticator
	// mismatch.
	AuthenticatorInvalid
	// UnknownSecret is returned when a SecretProvider has no secret
	// for the remote address.
	UnknownSecret
	// UnknownAttributeName is returned by programmatic attribute
	// construction when the dictionary has no matching entry.
	UnknownAttributeName
	// UnsupportedAuth is returned when EAP/MS-CHAPv2/ARAP crypto is
	// requested; these are structure-only in this implementation.
	UnsupportedAuth
	// Timeout covers client attempt exhaustion and server handler
	// budget expiry.
	Timeout
	// CorrelationMiss is returned when an inbound response has no
	// matching outstanding request.
	CorrelationMiss
	// IoError wraps a socket error bubbled up unchanged.
	IoError
)

func (k ErrorKind) String() string {
	switch k {
	case MalformedPacket:
		return "MalformedPacket"
	case AuthenticatorInvalid:
		return "AuthenticatorInvalid"
	case UnknownSecret:
		return "UnknownSecret"
	case UnknownAttributeName:
		return "UnknownAttributeName"
	case UnsupportedAuth:
		return "UnsupportedAuth"
	case Timeout:
		return "Timeout"
	case CorrelationMiss:
		return "CorrelationMiss"
	case IoError:
		return "IoError"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned by this package. Callers
// that need to branch on the failure kind should use errors.As and
// inspect Kind, or call IsKind.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// NewError constructs an *Error for callers outside this package
// (radclient, radserver, radproxy) that need to surface one of the
// kinds in this taxonomy, such as a client-side retry exhaustion.
func NewError(kind ErrorKind, msg string) error {
	return newError(kind, msg, nil)
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	for err != nil {
		if as, ok := err.(*Error); ok {
			e = as
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return false
	}
	return e.Kind == kind
}
