package indexstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docchat/internal/ai"
	"github.com/xxxsen/docchat/internal/filestore"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/retrieval"
)

func sampleIndex(t *testing.T) *retrieval.DocumentIndex {
	t.Helper()
	doc, err := retrieval.NewDocumentIndex("d41d8cd98f00b204e9800998ecf8427e", []ai.Embedding{
		{Text: "hello", Vector: []float32{1, 0, 0}},
		{Text: "世界", Vector: []float32{0, 1, 0}},
		{Text: "", Vector: []float32{0, 0, 1.5}},
	})
	require.NoError(t, err)
	return doc
}

func TestCodecRoundTrip(t *testing.T) {
	doc := sampleIndex(t)
	data, err := Encode(doc)
	require.NoError(t, err)
	require.Equal(t, blobMagic, string(data[:4]))

	got, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, doc.Hash, got.Hash)
	require.Equal(t, doc.Chunks, got.Chunks)
	require.Equal(t, doc.Index.Dim(), got.Index.Dim())
	for i := 0; i < doc.Index.Len(); i++ {
		require.Equal(t, doc.Index.Vector(i), got.Index.Vector(i))
	}
	hits, err := got.Index.Search([]float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Equal(t, 1, hits[0].Position)
}

func TestCodecKeepsModel(t *testing.T) {
	doc := sampleIndex(t)
	doc.Model = "text-embedding-3-small"
	data, err := Encode(doc)
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, "text-embedding-3-small", got.Model)
	require.Equal(t, 3, got.Index.Dim())
}

func TestDecodeVersionOneBlob(t *testing.T) {
	doc := sampleIndex(t)
	data, err := Encode(doc)
	require.NoError(t, err)

	// Version 1 has no model field: drop the empty model length and reseal.
	hashEnd := headerSize + 2 + len(doc.Hash)
	v1 := append([]byte(nil), data[:hashEnd]...)
	v1 = append(v1, data[hashEnd+2:len(data)-4]...)
	binary.LittleEndian.PutUint16(v1[4:], blobVersionV1)
	v1 = binary.LittleEndian.AppendUint32(v1, crc32.ChecksumIEEE(v1))

	got, err := Decode(v1)
	require.NoError(t, err)
	require.Empty(t, got.Model)
	require.Equal(t, doc.Chunks, got.Chunks)
}

func TestCodecEmptyIndex(t *testing.T) {
	doc, err := retrieval.NewDocumentIndex("empty", nil)
	require.NoError(t, err)
	data, err := Encode(doc)
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, 0, got.Index.Len())
}

func TestDecodeRejectsDamage(t *testing.T) {
	data, err := Encode(sampleIndex(t))
	require.NoError(t, err)

	flipped := append([]byte(nil), data...)
	flipped[len(flipped)/2] ^= 0xff

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "truncated", data: data[:len(data)-7]},
		{name: "bit flip", data: flipped},
		{name: "garbage", data: []byte("definitely not an index blob")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			require.Error(t, err)
			require.True(t, errors.Is(err, appErr.ErrCorrupt))
			require.True(t, appErr.IsNotReady(err))
		})
	}
}

func TestEncodeRejectsMismatchedChunks(t *testing.T) {
	doc := sampleIndex(t)
	doc.Chunks = doc.Chunks[:1]
	_, err := Encode(doc)
	require.True(t, errors.Is(err, appErr.ErrInvalid))
}

func TestStoreSaveLoad(t *testing.T) {
	ctx := context.Background()
	files, err := filestore.NewLocal(t.TempDir())
	require.NoError(t, err)
	store := New(files, 0, 0)

	_, err = store.Load(ctx, "missing")
	require.True(t, appErr.IsNotReady(err))

	doc := sampleIndex(t)
	require.NoError(t, store.Save(ctx, doc))
	ok, err := store.Exists(ctx, doc.Hash)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := store.Load(ctx, doc.Hash)
	require.NoError(t, err)
	require.Equal(t, doc.Chunks, got.Chunks)

	require.NoError(t, store.Delete(ctx, doc.Hash))
	require.NoError(t, store.Delete(ctx, doc.Hash))
	_, err = store.Load(ctx, doc.Hash)
	require.True(t, appErr.IsNotFound(err))
}

func TestStoreLoadCorruptBlob(t *testing.T) {
	ctx := context.Background()
	files, err := filestore.NewLocal(t.TempDir())
	require.NoError(t, err)
	store := New(files, 0, 0)

	payload := []byte("broken")
	require.NoError(t, files.Save(ctx, BlobKey("abc"), bytesReader(payload), int64(len(payload))))
	_, err = store.Load(ctx, "abc")
	require.True(t, errors.Is(err, appErr.ErrCorrupt))
}

func TestStoreCacheServesRepeatLoads(t *testing.T) {
	ctx := context.Background()
	files, err := filestore.NewLocal(t.TempDir())
	require.NoError(t, err)
	store := New(files, 4, time.Minute)

	doc := sampleIndex(t)
	require.NoError(t, store.Save(ctx, doc))
	first, err := store.Load(ctx, doc.Hash)
	require.NoError(t, err)
	require.Same(t, doc, first)
}

func bytesReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}
