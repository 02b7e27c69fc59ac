package indexstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"

	"github.com/xxxsen/docchat/internal/ai"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/retrieval"
)

// Blob layout, little endian:
//
//	magic "DCIX" | version u16 | metric u8 | reserved u8 | dim u32 | count u32
//	hash: len u16 + bytes
//	model: len u16 + bytes (version 2 only)
//	count*dim float32 vectors
//	count texts: len u32 + bytes
//	crc32 (IEEE) of everything above
const (
	blobMagic     = "DCIX"
	blobVersionV1 = uint16(1)
	blobVersion   = uint16(2)
	metricL2      = uint8(1)
	headerSize    = 4 + 2 + 1 + 1 + 4 + 4
	maxTextLength = 64 << 20
)

func corrupt(format string, args ...interface{}) error {
	return fmt.Errorf("index blob: "+format+": %w", append(args, appErr.ErrCorrupt)...)
}

func Encode(doc *retrieval.DocumentIndex) ([]byte, error) {
	if doc == nil || doc.Index == nil {
		return nil, fmt.Errorf("encode nil index: %w", appErr.ErrInvalid)
	}
	count := doc.Index.Len()
	if count != len(doc.Chunks) {
		return nil, fmt.Errorf("index has %d vectors but %d chunks: %w", count, len(doc.Chunks), appErr.ErrInvalid)
	}
	if len(doc.Hash) > math.MaxUint16 || len(doc.Model) > math.MaxUint16 {
		return nil, fmt.Errorf("hash or model too long: %w", appErr.ErrInvalid)
	}
	dim := doc.Index.Dim()
	buf := &bytes.Buffer{}
	buf.WriteString(blobMagic)
	_ = binary.Write(buf, binary.LittleEndian, blobVersion)
	buf.WriteByte(metricL2)
	buf.WriteByte(0)
	_ = binary.Write(buf, binary.LittleEndian, uint32(dim))
	_ = binary.Write(buf, binary.LittleEndian, uint32(count))
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(doc.Hash)))
	buf.WriteString(doc.Hash)
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(doc.Model)))
	buf.WriteString(doc.Model)
	for i := 0; i < count; i++ {
		if err := binary.Write(buf, binary.LittleEndian, doc.Index.Vector(i)); err != nil {
			return nil, err
		}
	}
	for _, chunk := range doc.Chunks {
		_ = binary.Write(buf, binary.LittleEndian, uint32(len(chunk)))
		buf.WriteString(chunk)
	}
	_ = binary.Write(buf, binary.LittleEndian, crc32.ChecksumIEEE(buf.Bytes()))
	return buf.Bytes(), nil
}

func Decode(data []byte) (*retrieval.DocumentIndex, error) {
	if len(data) < headerSize+2+4 {
		return nil, corrupt("truncated, %d bytes", len(data))
	}
	body, trailer := data[:len(data)-4], data[len(data)-4:]
	if crc32.ChecksumIEEE(body) != binary.LittleEndian.Uint32(trailer) {
		return nil, corrupt("checksum mismatch")
	}
	if string(body[:4]) != blobMagic {
		return nil, corrupt("bad magic")
	}
	r := bytes.NewReader(body[4:])
	var (
		version  uint16
		metric   uint8
		reserved uint8
		dim      uint32
		count    uint32
		hashLen  uint16
	)
	for _, v := range []interface{}{&version, &metric, &reserved, &dim, &count, &hashLen} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, corrupt("read header: %v", err)
		}
	}
	if version != blobVersion && version != blobVersionV1 {
		return nil, corrupt("unsupported version %d", version)
	}
	if metric != metricL2 {
		return nil, corrupt("unsupported metric %d", metric)
	}
	hash := make([]byte, hashLen)
	if _, err := io.ReadFull(r, hash); err != nil {
		return nil, corrupt("read hash: %v", err)
	}
	var model []byte
	if version >= blobVersion {
		var modelLen uint16
		if err := binary.Read(r, binary.LittleEndian, &modelLen); err != nil {
			return nil, corrupt("read model: %v", err)
		}
		model = make([]byte, modelLen)
		if _, err := io.ReadFull(r, model); err != nil {
			return nil, corrupt("read model: %v", err)
		}
	}
	if uint64(dim)*uint64(count)*4 > uint64(r.Len()) {
		return nil, corrupt("vector section exceeds blob")
	}
	if count > 0 && dim == 0 {
		return nil, corrupt("zero dimension")
	}
	records := make([]ai.Embedding, count)
	for i := range records {
		vec := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return nil, corrupt("read vector %d: %v", i, err)
		}
		records[i].Vector = vec
	}
	for i := range records {
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, corrupt("read text %d: %v", i, err)
		}
		if n > maxTextLength || int64(n) > int64(r.Len()) {
			return nil, corrupt("text %d length %d exceeds blob", i, n)
		}
		text := make([]byte, n)
		if _, err := io.ReadFull(r, text); err != nil {
			return nil, corrupt("read text %d: %v", i, err)
		}
		records[i].Text = string(text)
	}
	if r.Len() != 0 {
		return nil, corrupt("%d trailing bytes", r.Len())
	}
	doc, err := retrieval.NewDocumentIndex(string(hash), records)
	if err != nil {
		return nil, corrupt("rebuild index: %v", err)
	}
	doc.Model = string(model)
	return doc, nil
}
