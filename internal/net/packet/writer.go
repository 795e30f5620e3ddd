package packet

import "encoding/binary"

// Writer builds a datagram. All multi-byte writes are little-endian.
type Writer struct {
	buf []byte
}

func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// WriteC writes 1 byte.
func (w *Writer) WriteC(v byte) {
	w.buf = append(w.buf, v)
}

// WriteH writes 2 bytes little-endian.
func (w *Writer) WriteH(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// WriteD writes 4 bytes little-endian.
func (w *Writer) WriteD(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// WriteBytes writes raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *Writer) Len() int { return len(w.buf) }

// Bytes returns the written data. The slice aliases the writer's buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Reset empties the writer and keeps its buffer.
func (w *Writer) Reset() { w.buf = w.buf[:0] }
