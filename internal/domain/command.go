package domain

import (
	"encoding/json"
	"fmt"
)

// Command is the payload of an outgoing command. The value itself is
// serialized as the "params" object; Method names the remote operation.
// The runtime does not interpret or validate params.
type Command interface {
	Method() string
}

// Validator is implemented by result types that can detect a structurally
// valid but semantically wrong response.
type Validator interface {
	Validate() error
}

// RawCommand sends an arbitrary method with pre-encoded params.
type RawCommand struct {
	Name   string
	Params json.RawMessage
}

func (c RawCommand) Method() string { return c.Name }

// MarshalJSON emits Params verbatim, or {} when empty.
func (c RawCommand) MarshalJSON() ([]byte, error) {
	if len(c.Params) == 0 {
		return []byte("{}"), nil
	}
	if !json.Valid(c.Params) {
		return nil, fmt.Errorf("%s params: %w: not valid JSON", c.Name, ErrInvalidInput)
	}
	return c.Params, nil
}

// EmptyResult is returned by commands whose result carries no fields.
type EmptyResult struct{}

// --- session module ---

// CapabilitiesRequest mirrors session.CapabilitiesRequest.
type CapabilitiesRequest struct {
	AlwaysMatch map[string]any   `json:"alwaysMatch,omitempty"`
	FirstMatch  []map[string]any `json:"firstMatch,omitempty"`
}

// SessionNew is the handshake command.
type SessionNew struct {
	Capabilities CapabilitiesRequest `json:"capabilities"`
}

func (SessionNew) Method() string { return "session.new" }

// SessionNewResult is the handshake result.
type SessionNewResult struct {
	SessionID    string         `json:"sessionId"`
	Capabilities map[string]any `json:"capabilities"`
}

// Validate rejects a result without a session id.
func (r *SessionNewResult) Validate() error {
	if r.SessionID == "" {
		return fmt.Errorf("session.new: %w: missing sessionId", ErrUnexpectedResult)
	}
	return nil
}

// SessionStatus queries whether the remote end can create new sessions.
type SessionStatus struct{}

func (SessionStatus) Method() string { return "session.status" }

// SessionStatusResult is the status result.
type SessionStatusResult struct {
	Ready   bool   `json:"ready"`
	Message string `json:"message"`
}

// SessionEnd ends the current session.
type SessionEnd struct{}

func (SessionEnd) Method() string { return "session.end" }

// SessionSubscribe requests delivery of the named events, optionally scoped
// to browsing contexts.
type SessionSubscribe struct {
	Events   []string `json:"events"`
	Contexts []string `json:"contexts,omitempty"`
}

func (SessionSubscribe) Method() string { return "session.subscribe" }

// SessionSubscribeResult carries the remote subscription id.
type SessionSubscribeResult struct {
	Subscription string `json:"subscription"`
}

// Validate rejects a result without a subscription id.
func (r *SessionSubscribeResult) Validate() error {
	if r.Subscription == "" {
		return fmt.Errorf("session.subscribe: %w: missing subscription", ErrUnexpectedResult)
	}
	return nil
}

// SessionUnsubscribe removes subscriptions by id.
type SessionUnsubscribe struct {
	Subscriptions []string `json:"subscriptions"`
}

func (SessionUnsubscribe) Method() string { return "session.unsubscribe" }

// --- browsingContext module ---

// BrowsingContextInfo describes one navigable in a context tree.
type BrowsingContextInfo struct {
	Context     string                `json:"context"`
	URL         string                `json:"url"`
	UserContext string                `json:"userContext,omitempty"`
	Parent      *string               `json:"parent,omitempty"`
	Children    []BrowsingContextInfo `json:"children,omitempty"`
}

// BrowsingContextGetTree lists browsing contexts.
type BrowsingContextGetTree struct {
	MaxDepth *int   `json:"maxDepth,omitempty"`
	Root     string `json:"root,omitempty"`
}

func (BrowsingContextGetTree) Method() string { return "browsingContext.getTree" }

// BrowsingContextGetTreeResult is the getTree result.
type BrowsingContextGetTreeResult struct {
	Contexts []BrowsingContextInfo `json:"contexts"`
}

// Validate rejects a result without a contexts list.
func (r *BrowsingContextGetTreeResult) Validate() error {
	if r.Contexts == nil {
		return fmt.Errorf("browsingContext.getTree: %w: missing contexts", ErrUnexpectedResult)
	}
	return nil
}

// BrowsingContextCreate opens a tab or window.
type BrowsingContextCreate struct {
	Type             string `json:"type"` // "tab" or "window"
	ReferenceContext string `json:"referenceContext,omitempty"`
	Background       bool   `json:"background,omitempty"`
}

func (BrowsingContextCreate) Method() string { return "browsingContext.create" }

// BrowsingContextCreateResult names the new context.
type BrowsingContextCreateResult struct {
	Context string `json:"context"`
}

// Validate rejects a result without a context id.
func (r *BrowsingContextCreateResult) Validate() error {
	if r.Context == "" {
		return fmt.Errorf("browsingContext.create: %w: missing context", ErrUnexpectedResult)
	}
	return nil
}

// BrowsingContextClose closes a context.
type BrowsingContextClose struct {
	Context      string `json:"context"`
	PromptUnload bool   `json:"promptUnload,omitempty"`
}

func (BrowsingContextClose) Method() string { return "browsingContext.close" }

// BrowsingContextActivate focuses a top-level context.
type BrowsingContextActivate struct {
	Context string `json:"context"`
}

func (BrowsingContextActivate) Method() string { return "browsingContext.activate" }

// Readiness states accepted by navigate and reload.
const (
	ReadinessNone        = "none"
	ReadinessInteractive = "interactive"
	ReadinessComplete    = "complete"
)

// BrowsingContextNavigate loads a URL.
type BrowsingContextNavigate struct {
	Context string `json:"context"`
	URL     string `json:"url"`
	Wait    string `json:"wait,omitempty"`
}

func (BrowsingContextNavigate) Method() string { return "browsingContext.navigate" }

// BrowsingContextNavigateResult is the navigate/reload result.
type BrowsingContextNavigateResult struct {
	Navigation *string `json:"navigation"`
	URL        string  `json:"url"`
}

// BrowsingContextReload reloads a context.
type BrowsingContextReload struct {
	Context     string `json:"context"`
	IgnoreCache bool   `json:"ignoreCache,omitempty"`
	Wait        string `json:"wait,omitempty"`
}

func (BrowsingContextReload) Method() string { return "browsingContext.reload" }

// --- script module ---

// ScriptTarget selects where a script runs.
type ScriptTarget struct {
	Context string `json:"context,omitempty"`
	Realm   string `json:"realm,omitempty"`
	Sandbox string `json:"sandbox,omitempty"`
}

// ScriptEvaluate evaluates an expression.
type ScriptEvaluate struct {
	Expression      string       `json:"expression"`
	Target          ScriptTarget `json:"target"`
	AwaitPromise    bool         `json:"awaitPromise"`
	ResultOwnership string       `json:"resultOwnership,omitempty"`
}

func (ScriptEvaluate) Method() string { return "script.evaluate" }

// ScriptEvaluateResult is either a success or an exception result; the
// remote value is left undecoded.
type ScriptEvaluateResult struct {
	Type             string          `json:"type"` // "success" or "exception"
	Realm            string          `json:"realm"`
	Result           json.RawMessage `json:"result,omitempty"`
	ExceptionDetails json.RawMessage `json:"exceptionDetails,omitempty"`
}

// Validate rejects an unknown evaluate result variant.
func (r *ScriptEvaluateResult) Validate() error {
	switch r.Type {
	case "success", "exception":
		return nil
	default:
		return fmt.Errorf("script.evaluate: %w: result type %q", ErrUnexpectedResult, r.Type)
	}
}

// --- network module ---

// Interception phases.
const (
	InterceptBeforeRequestSent = "beforeRequestSent"
	InterceptResponseStarted   = "responseStarted"
	InterceptAuthRequired      = "authRequired"
)

// NetworkAddIntercept installs a request interception.
type NetworkAddIntercept struct {
	Phases   []string `json:"phases"`
	Contexts []string `json:"contexts,omitempty"`
}

func (NetworkAddIntercept) Method() string { return "network.addIntercept" }

// NetworkAddInterceptResult names the intercept.
type NetworkAddInterceptResult struct {
	Intercept string `json:"intercept"`
}

// Validate rejects a result without an intercept id.
func (r *NetworkAddInterceptResult) Validate() error {
	if r.Intercept == "" {
		return fmt.Errorf("network.addIntercept: %w: missing intercept", ErrUnexpectedResult)
	}
	return nil
}

// NetworkRemoveIntercept removes an intercept.
type NetworkRemoveIntercept struct {
	Intercept string `json:"intercept"`
}

func (NetworkRemoveIntercept) Method() string { return "network.removeIntercept" }

// Header is a network header with a string value.
type Header struct {
	Name  string      `json:"name"`
	Value HeaderValue `json:"value"`
}

// HeaderValue is a network.BytesValue restricted to the string form.
type HeaderValue struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// StringHeader builds a header with a string value.
func StringHeader(name, value string) Header {
	return Header{Name: name, Value: HeaderValue{Type: "string", Value: value}}
}

// NetworkContinueRequest resumes a blocked request, optionally modified.
type NetworkContinueRequest struct {
	Request    string   `json:"request"`
	URL        string   `json:"url,omitempty"`
	HTTPMethod string   `json:"method,omitempty"`
	Headers    []Header `json:"headers,omitempty"`
}

func (NetworkContinueRequest) Method() string { return "network.continueRequest" }

// NetworkFailRequest fails a blocked request.
type NetworkFailRequest struct {
	Request string `json:"request"`
}

func (NetworkFailRequest) Method() string { return "network.failRequest" }

// NetworkProvideResponse completes a blocked request with a synthetic response.
type NetworkProvideResponse struct {
	Request      string       `json:"request"`
	StatusCode   int          `json:"statusCode,omitempty"`
	ReasonPhrase string       `json:"reasonPhrase,omitempty"`
	Headers      []Header     `json:"headers,omitempty"`
	Body         *HeaderValue `json:"body,omitempty"`
}

func (NetworkProvideResponse) Method() string { return "network.provideResponse" }
