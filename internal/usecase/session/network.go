package session

import (
	"context"

	"webdriver-bidi/internal/domain"
)

// AddIntercept installs a network interception and returns its id.
func (s *Session) AddIntercept(ctx context.Context, phases []string, contexts []string) (string, error) {
	res, err := Call[domain.NetworkAddInterceptResult](ctx, s, domain.NetworkAddIntercept{Phases: phases, Contexts: contexts})
	if err != nil {
		return "", err
	}
	return res.Intercept, nil
}

// RemoveIntercept removes an interception.
func (s *Session) RemoveIntercept(ctx context.Context, intercept string) error {
	_, err := Call[domain.EmptyResult](ctx, s, domain.NetworkRemoveIntercept{Intercept: intercept})
	return err
}

// ContinueRequest resumes a blocked request. It is typically called from an
// event handler, which should not block on the outcome.
func (s *Session) ContinueRequest(ctx context.Context, req domain.NetworkContinueRequest) (*Handle, error) {
	return s.SendAndGetHandle(ctx, req)
}

// FailRequest fails a blocked request with a network error.
func (s *Session) FailRequest(ctx context.Context, request string) (*Handle, error) {
	return s.SendAndGetHandle(ctx, domain.NetworkFailRequest{Request: request})
}

// ProvideResponse completes a blocked request with a synthetic response.
func (s *Session) ProvideResponse(ctx context.Context, resp domain.NetworkProvideResponse) (*Handle, error) {
	return s.SendAndGetHandle(ctx, resp)
}
