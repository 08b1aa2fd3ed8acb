// Package source provides a unified, lazy byte-stream abstraction over the
// backing stores an xlsx workbook can be read from: a local file, an HTTP(S)
// endpoint, or an S3-compatible object store.
package source

import (
	"context"
	"io"
)

// OriginKind identifies which transport produced a Source.
type OriginKind int

const (
	OriginLocal OriginKind = iota
	OriginHTTP
	OriginS3
)

func (k OriginKind) String() string {
	switch k {
	case OriginLocal:
		return "local"
	case OriginHTTP:
		return "http"
	case OriginS3:
		return "s3"
	default:
		return "unknown"
	}
}

// Metadata carries coarse, cheaply-obtained facts about a Source without
// consuming its byte stream.
type Metadata struct {
	// Size is the resource size in bytes, nil when unknown (e.g. chunked
	// HTTP transfer encoding).
	Size *int64
	// ContentType is the resource MIME type, best-effort.
	ContentType string
	// Origin identifies which transport this metadata came from.
	Origin OriginKind
}

// Source produces a lazy, single-use sequence of bytes from a backing store.
//
// Open must be callable more than once on the same Source value to support
// xlsxstream's two-pass orchestration (see pkg/xlsxstream.Reader); each call
// returns an independent, forward-only reader. Callers must Close the
// returned io.ReadCloser to release the underlying socket or file
// descriptor.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Metadata(ctx context.Context) (Metadata, error)
}
