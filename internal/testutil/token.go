package testutil

// DefaultRunToken is returned by a StaticTokens built with an empty token.
const DefaultRunToken = "test-run-default"

// StaticTokens hands out the same run token on every call, so golden
// reports do not depend on UUID generation.
//
// Unlike pipeline.FixedGenerator, which walks a list and panics when it
// runs out, StaticTokens never exhausts.
//
// Thread-safety: StaticTokens is immutable and safe for concurrent use.
type StaticTokens struct {
	token string
}

// NewStaticTokens creates a generator for token, or DefaultRunToken when
// token is empty.
func NewStaticTokens(token string) *StaticTokens {
	if token == "" {
		token = DefaultRunToken
	}
	return &StaticTokens{token: token}
}

// Generate implements pipeline.TokenGenerator.
func (g *StaticTokens) Generate() string {
	return g.token
}
