package testutil

// FixedBatchGenerator returns the same batch token on every call.
//
// A scenario delivers all its events as one batch, and golden documents
// must not change between runs, so the token is taken from the scenario
// file rather than generated.
//
// Thread-safety: FixedBatchGenerator is stateless and safe for concurrent use.
type FixedBatchGenerator struct {
	token string
}

// NewFixedBatchGenerator creates a generator for token. An empty token
// becomes "test-batch-default".
func NewFixedBatchGenerator(token string) *FixedBatchGenerator {
	if token == "" {
		token = "test-batch-default"
	}
	return &FixedBatchGenerator{token: token}
}

// Generate returns the fixed token.
func (g *FixedBatchGenerator) Generate() string {
	return g.token
}
