package language

// Session is the conversation state the classifier reads and the caller
// carries between utterances. ActiveLanguage is set while sticky mode is on.
type Session struct {
	ActiveLanguage string `json:"active_language,omitempty"`
}

func (s Session) Sticky() bool {
	return s.ActiveLanguage != ""
}

// Apply returns the session that follows r. An explicit request for a
// non-canonical language enters sticky mode, one for the canonical language
// leaves it, and anything else leaves the session unchanged.
func (s Session) Apply(r Result, canonical string) Session {
	if r.Method != MethodExplicit {
		return s
	}
	if r.Language == canonical {
		return Session{}
	}
	return Session{ActiveLanguage: r.Language}
}
