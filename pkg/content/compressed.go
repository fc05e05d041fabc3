package content

import (
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// Framework publish steps often ship only name.br / name.gz next to where
// name would be.
var precompressed = []struct {
	suffix   string
	encoding string
	decode   func(io.ReadCloser) (io.ReadCloser, error)
}{
	{suffix: ".br", encoding: "br", decode: decodeBrotli},
	{suffix: ".gz", encoding: "gzip", decode: decodeGzip},
}

type decodedBody struct {
	io.Reader
	closers []io.Closer
}

func (b *decodedBody) Close() error {
	var first error
	for _, closer := range b.closers {
		if err := closer.Close(); err != nil && first == nil {
			first = err
		}
	}

	return first
}

func decodeBrotli(source io.ReadCloser) (io.ReadCloser, error) {
	return &decodedBody{Reader: brotli.NewReader(source), closers: []io.Closer{source}}, nil
}

func decodeGzip(source io.ReadCloser) (io.ReadCloser, error) {
	reader, err := gzip.NewReader(source)
	if err != nil {
		return nil, err
	}

	return &decodedBody{Reader: reader, closers: []io.Closer{reader, source}}, nil
}
