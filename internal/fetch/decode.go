package fetch

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
)

// decodeReader transparently decompresses a Content-Encoding wrapped body.
// The engine must be fed raw container bytes, so gzip and deflate payloads
// are decoded here. Construction of the decompressor is deferred to the
// first Read so Open stays lazy.
type decodeReader struct {
	raw      io.ReadCloser
	encoding string
	dec      io.ReadCloser
	initErr  error
}

func newDecodeReader(raw io.ReadCloser, encoding string) io.ReadCloser {
	return &decodeReader{raw: raw, encoding: encoding}
}

func (d *decodeReader) Read(p []byte) (int, error) {
	if d.initErr != nil {
		return 0, d.initErr
	}
	if d.dec == nil {
		if err := d.init(); err != nil {
			d.initErr = fmt.Errorf("decode %s body: %w", d.encoding, err)
			return 0, d.initErr
		}
	}
	return d.dec.Read(p)
}

func (d *decodeReader) init() error {
	switch d.encoding {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(d.raw)
		if err != nil {
			return err
		}
		d.dec = gz
	case "deflate":
		// Servers disagree on whether "deflate" means zlib (RFC 9110) or a
		// raw deflate stream; sniff the two-byte zlib header to pick.
		br := bufio.NewReader(d.raw)
		head, err := br.Peek(2)
		if err != nil {
			return err
		}
		if isZlibHeader(head) {
			zr, err := zlib.NewReader(br)
			if err != nil {
				return err
			}
			d.dec = zr
		} else {
			d.dec = flate.NewReader(br)
		}
	default:
		return fmt.Errorf("unsupported encoding %q", d.encoding)
	}
	return nil
}

func (d *decodeReader) Close() error {
	var errs []error
	if d.dec != nil {
		if err := d.dec.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := d.raw.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func isZlibHeader(b []byte) bool {
	if len(b) < 2 {
		return false
	}
	// CMF low nibble 8 = deflate, and the CMF/FLG pair is a multiple of 31.
	if b[0]&0x0f != 8 {
		return false
	}
	return (uint16(b[0])<<8|uint16(b[1]))%31 == 0
}
