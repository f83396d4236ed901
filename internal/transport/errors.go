package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"

	"github.com/relaylens/relaylens/internal/relay"
)

// FailureKind is the small taxonomy connection failures are classified
// into. Classification informs retry annotation and the UI; it never blocks
// a state transition.
type FailureKind int

const (
	// FailureUnknown is the fallback; the original error is preserved.
	FailureUnknown FailureKind = iota
	// FailureConnectionRefused: the relay host actively refused.
	FailureConnectionRefused
	// FailureHostUnreachable: DNS failure or no route to the relay.
	FailureHostUnreachable
	// FailureTimeout: the attempt or heartbeat exchange timed out.
	FailureTimeout
	// FailureTLS: certificate or TLS handshake trouble.
	FailureTLS
	// FailureAuth: the relay rejected the supplied credentials.
	FailureAuth
	// FailureProtocol: malformed frame or broken handshake.
	FailureProtocol
)

// String returns the taxonomy label.
func (k FailureKind) String() string {
	switch k {
	case FailureConnectionRefused:
		return "connection_refused"
	case FailureHostUnreachable:
		return "host_unreachable"
	case FailureTimeout:
		return "timeout"
	case FailureTLS:
		return "tls_error"
	case FailureAuth:
		return "authentication_failed"
	case FailureProtocol:
		return "protocol_error"
	default:
		return "unknown"
	}
}

// Transient reports whether the failure reads as a plain network blip.
// Auth and TLS failures also retry, but are annotated so the UI can point
// at credentials or certificates instead of the network.
func (k FailureKind) Transient() bool {
	switch k {
	case FailureConnectionRefused, FailureHostUnreachable, FailureTimeout:
		return true
	default:
		return false
	}
}

// Failure pairs a taxonomy kind with the underlying error for diagnostics.
type Failure struct {
	Kind FailureKind
	Err  error
}

// Error implements error.
func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Kind.String()
	}
	return f.Kind.String() + ": " + f.Err.Error()
}

// Unwrap exposes the original error.
func (f *Failure) Unwrap() error {
	return f.Err
}

// Classify maps a transport error onto the taxonomy. Typed errors are
// checked first; the remainder falls back to pattern matching on the error
// text, and anything unmatched becomes FailureUnknown with the original
// error attached.
func Classify(err error) *Failure {
	if err == nil {
		return nil
	}
	f := &Failure{Kind: classifyKind(err), Err: err}
	return f
}

func classifyKind(err error) FailureKind {
	if errors.Is(err, relay.ErrMalformedFrame) {
		return FailureProtocol
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return FailureConnectionRefused
	}
	if errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return FailureHostUnreachable
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return FailureHostUnreachable
	}

	var (
		unknownAuthority x509.UnknownAuthorityError
		hostnameErr      x509.HostnameError
		certInvalid      x509.CertificateInvalidError
		recordHeader     tls.RecordHeaderError
	)
	if errors.As(err, &unknownAuthority) || errors.As(err, &hostnameErr) ||
		errors.As(err, &certInvalid) || errors.As(err, &recordHeader) {
		return FailureTLS
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return FailureProtocol
	}

	return classifyText(err.Error())
}

// classifyText pattern-matches the error text for causes that only surface
// as strings (handshake responses, wrapped syscall messages from other
// platforms).
func classifyText(text string) FailureKind {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "credentials"),
		strings.Contains(lower, "unauthorized"),
		strings.Contains(lower, "http 401"),
		strings.Contains(lower, "http 403"):
		return FailureAuth
	case strings.Contains(lower, "x509"),
		strings.Contains(lower, "certificate"),
		strings.Contains(lower, "tls"):
		return FailureTLS
	case strings.Contains(lower, "connection refused"):
		return FailureConnectionRefused
	case strings.Contains(lower, "no such host"),
		strings.Contains(lower, "network is unreachable"),
		strings.Contains(lower, "no route to host"):
		return FailureHostUnreachable
	case strings.Contains(lower, "timeout"),
		strings.Contains(lower, "deadline exceeded"):
		return FailureTimeout
	case strings.Contains(lower, "bad handshake"),
		strings.Contains(lower, "malformed"):
		return FailureProtocol
	default:
		return FailureUnknown
	}
}
