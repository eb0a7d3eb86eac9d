package encoder

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/pierrec/lz4"
	"github.com/vkngwrapper/core/v3/common"

	"github.com/vkngwrapper/vkencoder/internal/config"
	"github.com/vkngwrapper/vkencoder/internal/vkerr"
)

const StreamVersion = 1

var streamMagic = [4]byte{'V', 'K', 'E', 'N'}

const (
	codecRaw uint8 = iota
	codecLZ4
)

// FileHeader opens every output stream. It is never compressed.
type FileHeader struct {
	Magic   [4]byte
	Version uint16
	Codec   uint8
	_       uint8
	Width   uint32
	Height  uint32
	Format  uint32
	Session uuid.UUID
}

// HeaderSize is the encoded size of FileHeader.
var HeaderSize = binary.Size(FileHeader{})

func codecID(codec config.Codec) (uint8, error) {
	switch codec {
	case config.CodecRaw, "":
		return codecRaw, nil
	case config.CodecLZ4:
		return codecLZ4, nil
	}
	return 0, vkerr.Configurationf("unknown encoder codec %q", codec)
}

// ReadHeader decodes and checks a stream header.
func ReadHeader(r io.Reader) (FileHeader, error) {
	var header FileHeader
	if err := binary.Read(r, common.ByteOrder, &header); err != nil {
		return header, vkerr.IO(err, "read stream header")
	}
	if header.Magic != streamMagic {
		return header, vkerr.IO(errors.Newf("bad magic %q", header.Magic[:]), "read stream header")
	}
	if header.Version != StreamVersion {
		return header, vkerr.IO(errors.Newf("unsupported version %d", header.Version), "read stream header")
	}
	return header, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// stream writes a header followed by length-prefixed frame records. With the lz4 codec only
// the records go through the compressor.
type stream struct {
	closer   io.Closer
	counter  *countingWriter
	buffered *bufio.Writer
	lz       *lz4.Writer
	records  io.Writer
	frames   int
	closed   bool
}

func createStream(path string, header FileHeader) (*stream, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, vkerr.IO(err, "create encoder output %s", path)
	}

	s, err := newStream(f, header)
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func newStream(w io.WriteCloser, header FileHeader) (*stream, error) {
	counter := &countingWriter{w: w}
	s := &stream{
		closer:   w,
		counter:  counter,
		buffered: bufio.NewWriter(counter),
	}

	header.Magic = streamMagic
	header.Version = StreamVersion
	if err := binary.Write(s.buffered, common.ByteOrder, header); err != nil {
		return nil, vkerr.IO(err, "write stream header")
	}

	s.records = s.buffered
	if header.Codec == codecLZ4 {
		s.lz = lz4.NewWriter(s.buffered)
		s.records = s.lz
	}
	return s, nil
}

// WriteFrame appends one record holding exactly payload.
func (s *stream) WriteFrame(payload []byte) error {
	if s.closed {
		return vkerr.NullResource("encoder output stream")
	}

	var length [4]byte
	common.ByteOrder.PutUint32(length[:], uint32(len(payload)))
	if _, err := s.records.Write(length[:]); err != nil {
		return vkerr.IO(err, "write frame %d", s.frames)
	}
	if _, err := s.records.Write(payload); err != nil {
		return vkerr.IO(err, "write frame %d", s.frames)
	}
	s.frames++
	return nil
}

// Close flushes everything and closes the underlying writer. It returns the number of bytes
// that reached it.
func (s *stream) Close() (int64, error) {
	if s.closed {
		return s.counter.n, nil
	}
	s.closed = true

	var err error
	if s.lz != nil {
		err = errors.CombineErrors(err, s.lz.Close())
	}
	err = errors.CombineErrors(err, s.buffered.Flush())
	err = errors.CombineErrors(err, s.closer.Close())
	if err != nil {
		return s.counter.n, vkerr.IO(err, "close encoder output")
	}
	return s.counter.n, nil
}
