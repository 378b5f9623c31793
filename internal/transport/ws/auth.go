package ws

// Grant is what the external identity service says about a token: the
// display name and the PERMIT-gated regions the agent may enter. The core
// trusts this result and does not re-derive it.
type Grant struct {
	Name    string
	Permits []string
}

type Authenticator interface {
	Verify(agentID, token string) (Grant, bool)
}

// AllowAll admits every token. Dev default; production wires the identity
// service here.
type AllowAll struct{}

func (AllowAll) Verify(agentID, token string) (Grant, bool) {
	return Grant{Name: agentID}, true
}

// StaticTokens authenticates against a fixed token table, e.g. loaded from
// configuration.
type StaticTokens struct {
	Tokens map[string]Grant // token -> grant
}

func (s StaticTokens) Verify(agentID, token string) (Grant, bool) {
	g, ok := s.Tokens[token]
	return g, ok
}
