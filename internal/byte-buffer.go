package internal

import "sync"

var bufPool = sync.Pool{New: func() interface{} {
	return []byte(nil)
}}

/*
ReserveByteBuffer returns a slice of bytes of length 0 from a
sync.Pool, possibly with the capacity of a previously released buffer.
The record pipeline encodes each batch into such a buffer.

Use ReleaseByteBuffer to return the buffer once its contents are
written.
*/
func ReserveByteBuffer() []byte {
	return bufPool.Get().([]byte)[:0]
}

/*
ReleaseByteBuffer returns buf to the pool of ReserveByteBuffer. buf
must not be used afterwards.
*/
func ReleaseByteBuffer(buf []byte) {
	if cap(buf) > 0 {
		bufPool.Put(buf)
	}
}
