package utils

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

// ErrLimitExceeded is returned by LimitedReader once more than Max bytes are available.
var ErrLimitExceeded = errors.New("read limit exceeded")

// bufPool reuses byte buffers to reduce GC pressure.
var bufPool = sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

// AcquireBuffer returns a reset buffer from the pool.
func AcquireBuffer() *bytes.Buffer {
	b := bufPool.Get().(*bytes.Buffer)
	b.Reset()
	return b
}

// ReleaseBuffer returns b to the pool.  Callers must not use b after this call.
func ReleaseBuffer(b *bytes.Buffer) {
	// Cap large buffers to avoid pinning excessive memory.
	if b.Cap() > 8*1024*1024 {
		return
	}
	bufPool.Put(b)
}

// DrainReader reads all bytes from r into a pooled buffer and returns them.
// Pass the buffer back with ReleaseBuffer once its bytes have been copied.
func DrainReader(ctx context.Context, r io.Reader, chunkSize int) (*bytes.Buffer, error) {
	if chunkSize <= 0 {
		chunkSize = 32 * 1024
	}
	buf := AcquireBuffer()
	chunk := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			ReleaseBuffer(buf)
			return nil, err
		}
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			ReleaseBuffer(buf)
			return nil, err
		}
	}
	return buf, nil
}

// ReadAll drains r and returns an owned copy of its bytes.
func ReadAll(ctx context.Context, r io.Reader, chunkSize int, max int64) ([]byte, error) {
	if max > 0 {
		r = &LimitedReader{R: r, Max: max}
	}
	buf, err := DrainReader(ctx, r, chunkSize)
	if err != nil {
		return nil, err
	}
	out := CloneBytes(buf.Bytes())
	ReleaseBuffer(buf)
	return out, nil
}

// LimitedReader wraps r and fails with ErrLimitExceeded when r holds more
// than Max bytes. A reader of exactly Max bytes ends with io.EOF.
type LimitedReader struct {
	R   io.Reader
	Max int64
	n   int64
}

func (l *LimitedReader) Read(p []byte) (int, error) {
	if l.Max <= 0 {
		return l.R.Read(p)
	}
	if l.n >= l.Max {
		var extra [1]byte
		n, err := l.R.Read(extra[:])
		if n > 0 {
			return 0, ErrLimitExceeded
		}
		if err == nil {
			return 0, nil
		}
		return 0, err
	}
	if remain := l.Max - l.n; int64(len(p)) > remain {
		p = p[:remain]
	}
	n, err := l.R.Read(p)
	l.n += int64(n)
	return n, err
}
