package handlers

import (
	"bytes"
	"sync"

	"github.com/rs/zerolog/log"
)

// uploadBufferPool provides reusable byte buffers for upload bodies, which
// carry a base64 screenshot and usually run to a few hundred KB.
var uploadBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 256<<10))
	},
}

// maxPooledBuffer keeps one oversized upload from pinning its buffer.
const maxPooledBuffer = 4 << 20

// getBuffer retrieves an upload buffer from the pool.
func getBuffer() *bytes.Buffer {
	v := uploadBufferPool.Get()
	buf, ok := v.(*bytes.Buffer)
	if !ok {
		log.Warn().Interface("got_type", v).Msg("Unexpected type from upload buffer pool")
		return bytes.NewBuffer(make([]byte, 0, 256<<10))
	}
	return buf
}

// putBuffer returns a buffer to the pool after resetting it.
func putBuffer(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBuffer {
		return
	}
	buf.Reset()
	uploadBufferPool.Put(buf)
}

// responseBufferPool provides reusable byte buffers for JSON encoding.
var responseBufferPool = sync.Pool{
	New: func() interface{} {
		// Ad listings include stored DOM snippets.
		return bytes.NewBuffer(make([]byte, 0, 8192))
	},
}

// getResponseBuffer retrieves a response buffer from the pool.
func getResponseBuffer() *bytes.Buffer {
	v := responseBufferPool.Get()
	buf, ok := v.(*bytes.Buffer)
	if !ok {
		log.Warn().Interface("got_type", v).Msg("Unexpected type from response buffer pool")
		return bytes.NewBuffer(make([]byte, 0, 8192))
	}
	return buf
}

// putResponseBuffer returns a response buffer to the pool after resetting it.
func putResponseBuffer(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBuffer {
		return
	}
	buf.Reset()
	responseBufferPool.Put(buf)
}
