package anthropic

// CachedSystem returns a single system block marked as a prompt-cache
// breakpoint. Every item of a workflow cycle shares the same system prompt,
// so after the first call the prompt is read from cache.
func CachedSystem(text string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: "5m"},
		},
	}
}
