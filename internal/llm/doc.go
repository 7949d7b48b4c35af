// Package llm provides inference clients used to turn free text into
// structured operation candidates. It supports OpenAI, Anthropic and a local
// Ollama server, with retry logic, rate limiting and reply caching layered on
// top by Inferrer.
package llm
