package domain

// Event names delivered by the remote end. Any "module.event" string is
// accepted by the subscription table; these cover the commonly used ones.
const (
	EventContextCreated       = "browsingContext.contextCreated"
	EventContextDestroyed     = "browsingContext.contextDestroyed"
	EventNavigationStarted    = "browsingContext.navigationStarted"
	EventFragmentNavigated    = "browsingContext.fragmentNavigated"
	EventDOMContentLoaded     = "browsingContext.domContentLoaded"
	EventLoad                 = "browsingContext.load"
	EventUserPromptOpened     = "browsingContext.userPromptOpened"
	EventUserPromptClosed     = "browsingContext.userPromptClosed"
	EventBeforeRequestSent    = "network.beforeRequestSent"
	EventResponseStarted      = "network.responseStarted"
	EventResponseCompleted    = "network.responseCompleted"
	EventFetchError           = "network.fetchError"
	EventAuthRequired         = "network.authRequired"
	EventLogEntryAdded        = "log.entryAdded"
	EventScriptMessage        = "script.message"
	EventScriptRealmCreated   = "script.realmCreated"
	EventScriptRealmDestroyed = "script.realmDestroyed"
)

// NavigationInfo is the params of browsingContext load-style events.
type NavigationInfo struct {
	Context    string  `json:"context"`
	Navigation *string `json:"navigation"`
	Timestamp  uint64  `json:"timestamp"`
	URL        string  `json:"url"`
}

// RequestData describes an in-flight network request.
type RequestData struct {
	Request string   `json:"request"`
	URL     string   `json:"url"`
	Method  string   `json:"method"`
	Headers []Header `json:"headers"`
}

// BeforeRequestSent is the params of network.beforeRequestSent.
type BeforeRequestSent struct {
	Context       string      `json:"context"`
	IsBlocked     bool        `json:"isBlocked"`
	Navigation    *string     `json:"navigation"`
	RedirectCount int         `json:"redirectCount"`
	Request       RequestData `json:"request"`
	Timestamp     uint64      `json:"timestamp"`
	Intercepts    []string    `json:"intercepts,omitempty"`
}

// LogEntry is the params of log.entryAdded.
type LogEntry struct {
	Type      string `json:"type"`
	Level     string `json:"level"`
	Text      string `json:"text"`
	Timestamp uint64 `json:"timestamp"`
	Method    string `json:"method,omitempty"`
}
