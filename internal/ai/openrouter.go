package ai

const (
	ClassOpenRouter = "openrouter"

	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

// NewOpenRouterChatProvider returns a stateless provider for OpenRouter, which
// speaks the OpenAI wire format plus two optional attribution headers.
func NewOpenRouterChatProvider(httpReferer, xTitle string, opts ...OpenAIChatOption) *OpenAIChatProvider {
	base := []OpenAIChatOption{
		WithDefaultBaseURL(defaultOpenRouterBaseURL),
		WithExtraHeader("HTTP-Referer", httpReferer),
		WithExtraHeader("X-Title", xTitle),
	}
	return NewOpenAIChatProvider(ClassOpenRouter, append(base, opts...)...)
}
