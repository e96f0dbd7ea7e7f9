// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zlib"
)

// PayloadKind tags the schema of a cached payload. The cache itself is
// schema-agnostic; the tag lets readers reject entries written by a
// different component without guessing at the bytes.
type PayloadKind string

// Known payload kinds.
const (
	KindProviderResponse PayloadKind = "provider_response"
	KindBatchReport      PayloadKind = "batch_report"
	KindImportProgress   PayloadKind = "import_progress"
	KindUsageRecord      PayloadKind = "usage_record"
)

// ErrCorrupt marks a payload that could not be decompressed or decoded.
// Callers treat it as a cache miss, never as a fatal error.
var ErrCorrupt = errors.New("cache: corrupt payload")

// envelope is the on-disk wrapper around every payload.
type envelope struct {
	Kind PayloadKind     `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Encode serializes value under the given kind and compresses it.
func Encode(kind PayloadKind, value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	env, err := json.Marshal(envelope{Kind: kind, Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(env); err != nil {
		return nil, fmt.Errorf("compress payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("flush payload: %w", err)
	}

	return buf.Bytes(), nil
}

// Decode decompresses raw and unmarshals its payload into out. A
// payload of the wrong kind or one that fails to parse returns
// ErrCorrupt (wrapped with detail).
func Decode(raw []byte, kind PayloadKind, out any) error {
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer zr.Close()

	decompressed, err := io.ReadAll(zr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var env envelope
	if err := json.Unmarshal(decompressed, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if env.Kind != kind {
		return fmt.Errorf("%w: kind %q, want %q", ErrCorrupt, env.Kind, kind)
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return nil
}
