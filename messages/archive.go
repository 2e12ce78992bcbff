// Package messages implements the corelib wire format: fixed-layout message
// headers, frame building, and frame parsing/dispatch
/*
 * Copyright (c) 2024-2025, Duncan Crutchley. All rights reserved.
 */
package messages

import (
	"encoding/binary"
	"encoding/xml"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pierrec/lz4/v3"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/proto"
	"gopkg.in/yaml.v3"
)

// ArchiveType is the in-band tag identifying a typed body's serialization
// format. Raw bodies carry ArchiveRaw and bypass the codec registry.
type ArchiveType uint16

const (
	ArchiveRaw ArchiveType = iota
	ArchivePortableBinary
	ArchivePortableBinLZ4
	ArchiveText
	ArchiveXML
	ArchiveProtobuf
	ArchiveJSON
)

func (a ArchiveType) String() string {
	switch a {
	case ArchiveRaw:
		return "raw"
	case ArchivePortableBinary:
		return "portable-binary"
	case ArchivePortableBinLZ4:
		return "portable-binary-lz4"
	case ArchiveText:
		return "text"
	case ArchiveXML:
		return "xml"
	case ArchiveProtobuf:
		return "protobuf"
	case ArchiveJSON:
		return "json"
	}
	return "unknown"
}

// Codec is an encoder/decoder pair for one archive type. Decode fills the
// value pointed to by out.
type Codec struct {
	Encode func(v any) ([]byte, error)
	Decode func(data []byte, out any) error
}

var (
	codecs   = make(map[ArchiveType]Codec, 8)
	codecsMu sync.RWMutex
)

// RegisterCodec binds an archive tag to a codec; the built-in tags are
// registered at init time, additional tags may be added by the application.
func RegisterCodec(a ArchiveType, c Codec) {
	codecsMu.Lock()
	codecs[a] = c
	codecsMu.Unlock()
}

func CodecFor(a ArchiveType) (Codec, error) {
	codecsMu.RLock()
	c, ok := codecs[a]
	codecsMu.RUnlock()
	if !ok {
		return Codec{}, errors.Errorf("no codec registered for archive %s(%d)", a, a)
	}
	return c, nil
}

// DecodeBody decodes a received typed body into out via the codec named by
// the message header's archive tag.
func DecodeBody(msg *ReceivedMessage, out any) error {
	c, err := CodecFor(msg.Header.Archive)
	if err != nil {
		return err
	}
	return c.Decode(msg.Body, out)
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func init() {
	RegisterCodec(ArchiveRaw, Codec{Encode: rawEncode, Decode: rawDecode})
	RegisterCodec(ArchivePortableBinary, Codec{
		Encode: func(v any) ([]byte, error) { return msgpack.Marshal(v) },
		Decode: func(data []byte, out any) error { return msgpack.Unmarshal(data, out) },
	})
	RegisterCodec(ArchivePortableBinLZ4, Codec{Encode: lz4Encode, Decode: lz4Decode})
	RegisterCodec(ArchiveText, Codec{
		Encode: func(v any) ([]byte, error) { return yaml.Marshal(v) },
		Decode: func(data []byte, out any) error { return yaml.Unmarshal(data, out) },
	})
	RegisterCodec(ArchiveXML, Codec{
		Encode: func(v any) ([]byte, error) { return xml.Marshal(v) },
		Decode: func(data []byte, out any) error { return xml.Unmarshal(data, out) },
	})
	RegisterCodec(ArchiveProtobuf, Codec{Encode: pbEncode, Decode: pbDecode})
	RegisterCodec(ArchiveJSON, Codec{
		Encode: func(v any) ([]byte, error) { return json.Marshal(v) },
		Decode: func(data []byte, out any) error { return json.Unmarshal(data, out) },
	})
}

func rawEncode(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, errors.Errorf("raw archive requires []byte, got %T", v)
	}
	return b, nil
}

func rawDecode(data []byte, out any) error {
	p, ok := out.(*[]byte)
	if !ok {
		return errors.Errorf("raw archive requires *[]byte, got %T", out)
	}
	*p = append((*p)[:0], data...)
	return nil
}

func pbEncode(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, errors.Errorf("protobuf archive requires proto.Message, got %T", v)
	}
	return proto.Marshal(m)
}

func pbDecode(data []byte, out any) error {
	m, ok := out.(proto.Message)
	if !ok {
		return errors.Errorf("protobuf archive requires proto.Message, got %T", out)
	}
	return proto.Unmarshal(data, m)
}

// lz4: msgpack body, block-compressed, prefixed with the uncompressed size
func lz4Encode(v any) ([]byte, error) {
	plain, err := msgpack.Marshal(v)
	if err != nil {
		return nil, err
	}
	dst := make([]byte, 4+lz4.CompressBlockBound(len(plain)))
	binary.LittleEndian.PutUint32(dst, uint32(len(plain)))
	n, err := lz4.CompressBlock(plain, dst[4:], nil)
	if err != nil {
		return nil, errors.Wrap(err, "lz4 compress")
	}
	if n == 0 {
		// incompressible; store uncompressed with a zero marker
		binary.LittleEndian.PutUint32(dst, 0)
		return append(dst[:4], plain...), nil
	}
	return dst[:4+n], nil
}

func lz4Decode(data []byte, out any) error {
	if len(data) < 4 {
		return errors.New("lz4 archive: short body")
	}
	size := binary.LittleEndian.Uint32(data)
	plain := data[4:]
	if size > 0 {
		dst := make([]byte, size)
		n, err := lz4.UncompressBlock(plain, dst)
		if err != nil {
			return errors.Wrap(err, "lz4 uncompress")
		}
		plain = dst[:n]
	}
	return msgpack.Unmarshal(plain, out)
}
