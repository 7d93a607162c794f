package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"inquest/internal/domain"
)

// callTaxonomy are the sentinels a classified call failure may carry.
var callTaxonomy = []error{
	domain.ErrUnknownEndpoint,
	domain.ErrEndpointDisabled,
	domain.ErrCircuitOpen,
	domain.ErrTimeout,
	domain.ErrConnection,
	domain.ErrProtocol,
	domain.ErrCacheUnavailable,
}

// statusPattern matches "backend error <status>:" produced by mapStatusError,
// so errors that lost their wrap (stringified and rewrapped upstream) still
// classify by status.
var statusPattern = regexp.MustCompile(`backend error (\d+):`)

// Classify maps an arbitrary call failure onto exactly one taxonomy
// sentinel. Errors already carrying a sentinel pass through unchanged; the
// rest are matched by error type, then extracted HTTP status, then message
// text. Anything unrecognized is a protocol error: an endpoint we reached
// but could not make sense of.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	for _, sentinel := range callTaxonomy {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	if ctxErr := contextError(err); ctxErr != nil {
		return ctxErr
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %v", domain.ErrConnection, err)
	}

	errStr := err.Error()
	if matches := statusPattern.FindStringSubmatch(errStr); len(matches) == 2 {
		code, _ := strconv.Atoi(matches[1])
		return classifyByStatus(err, code)
	}

	return classifyByString(err, errStr)
}

// contextError maps context expiry onto the timeout sentinel. Returns nil
// when err is not a context error.
func contextError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: canceled: %v", domain.ErrTimeout, err)
	}
	return nil
}

func classifyByStatus(err error, code int) error {
	switch {
	case code == 408 || code == 504:
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	case code == 429 || code == 502 || code == 503:
		return fmt.Errorf("%w: %v", domain.ErrConnection, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrProtocol, err)
	}
}

func classifyByString(err error, errStr string) error {
	lower := strings.ToLower(errStr)

	for _, p := range []string{"timeout", "timed out", "deadline exceeded"} {
		if strings.Contains(lower, p) {
			return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
		}
	}

	for _, p := range []string{
		"connection refused", "connection reset", "no such host",
		"broken pipe", "network is unreachable", "eof",
	} {
		if strings.Contains(lower, p) {
			return fmt.Errorf("%w: %v", domain.ErrConnection, err)
		}
	}

	return fmt.Errorf("%w: %v", domain.ErrProtocol, err)
}
