package connection

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/goevery/realtimesync/internal/ierr"
)

var ErrEndpointNotConfigured = ierr.New(ierr.ErrorCodeFailedPrecondition, errors.New("realtime endpoint is not configured"))

// BuildEndpoint returns {baseURL}/{resourceType}/{subjectId}/updates, or
// {baseURL}/{resourceType}/updates for the global feed, with http(s) schemes
// mapped to ws(s).
func BuildEndpoint(baseURL string, resourceType string, subjectId string) (string, error) {
	if baseURL == "" {
		return "", ErrEndpointNotConfigured
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return "", ierr.New(ierr.ErrorCodeFailedPrecondition, fmt.Errorf("invalid base url: %w", err))
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", ierr.New(ierr.ErrorCodeFailedPrecondition, fmt.Errorf("unsupported base url scheme %q", u.Scheme))
	}

	if u.Host == "" {
		return "", ierr.New(ierr.ErrorCodeFailedPrecondition, errors.New("base url has no host"))
	}

	if resourceType == "" {
		return "", ierr.New(ierr.ErrorCodeFailedPrecondition, errors.New("resource type is not configured"))
	}

	segments := []string{resourceType}
	if subjectId != "" {
		segments = append(segments, subjectId)
	}
	segments = append(segments, "updates")

	return u.JoinPath(segments...).String(), nil
}
