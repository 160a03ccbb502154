package luxsession

import (
	"bytes"
	"sync"
)

var readerPool = sync.Pool{
	New: func() any {
		return bytes.NewReader(nil)
	},
}

var bufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

func getBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer wipes the buffer's content and returns it to the pool, so
// session payloads do not linger in pooled memory.
func PutBuffer(buf *bytes.Buffer) {
	clear(buf.Bytes())
	buf.Reset()
	bufferPool.Put(buf)
}

func getReader(data []byte) *bytes.Reader {
	r := readerPool.Get().(*bytes.Reader)
	r.Reset(data)
	return r
}

func putReader(r *bytes.Reader) {
	r.Reset(nil)
	readerPool.Put(r)
}
