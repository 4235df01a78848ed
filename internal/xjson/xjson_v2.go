//go:build jsonv2

// Package xjson selects a JSON codec at build time: the standard library by
// default, or the experimental encoding/json/v2 candidate behind the jsonv2
// build tag. Kept to Marshal/Unmarshal only, since the experimental streaming
// APIs are still moving. Build with: go build -tags jsonv2
package xjson

import expjson "github.com/go-json-experiment/json"

// Marshal encodes v with the experimental codec.
func Marshal(v any) ([]byte, error) { return expjson.Marshal(v) }

// Unmarshal decodes data with the experimental codec.
func Unmarshal(data []byte, v any) error { return expjson.Unmarshal(data, v) }
