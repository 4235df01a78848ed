//go:build !jsonv2

// Package xjson selects a JSON codec at build time: the standard library by
// default, or the experimental encoding/json/v2 candidate behind the jsonv2
// build tag. It backs the LLM client's second-tier response decoding.
package xjson

import stdjson "encoding/json"

// Marshal encodes v with encoding/json.
func Marshal(v any) ([]byte, error) { return stdjson.Marshal(v) }

// Unmarshal decodes data with encoding/json.
func Unmarshal(data []byte, v any) error { return stdjson.Unmarshal(data, v) }
