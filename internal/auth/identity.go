package auth

// Identity represents a normalized external authentication identity
// extracted from a provider-issued ID token. It contains facts only,
// no decisions.
type Identity struct {
	Provider      string // e.g. "google"
	Subject       string // provider-scoped stable user identifier (sub)
	Email         string
	EmailVerified bool // whether the provider asserts email ownership
	Name          string
	Picture       string
}

// ProviderTokens is the result of trading an authorization code at the
// provider's token endpoint. IDToken may be empty when the provider did
// not include one; the orchestrator treats that as a failure.
type ProviderTokens struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64 // seconds
}
