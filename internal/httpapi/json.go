package httpapi

import "github.com/bytedance/sonic"

// sonicMarshal encodes SSE payloads with the same codec the rest of the
// service uses for LLM request/response bodies.
func sonicMarshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}
