package pup

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/meigma/pup/crypt"
	"github.com/meigma/pup/internal/batch"
	"github.com/meigma/pup/internal/codec"
	"github.com/meigma/pup/internal/puptype"
	"github.com/meigma/pup/internal/sizing"
)

// Decrypter decrypts entry data. Implementations must be safe for
// concurrent use.
type Decrypter interface {
	Decrypt(ciphertext, key, iv []byte) ([]byte, error)
}

// KeyProvider supplies key material for encrypted entries.
type KeyProvider interface {
	// KeyFor returns the key and IV for e, or false if none is known.
	KeyFor(e Entry) (key, iv []byte, ok bool)
}

// StaticKey provides the same key and IV for every entry.
type StaticKey struct {
	Key []byte
	IV  []byte
}

// KeyFor implements KeyProvider.
func (k StaticKey) KeyFor(Entry) ([]byte, []byte, bool) {
	return k.Key, k.IV, len(k.Key) > 0
}

// KeyFunc adapts a function to KeyProvider.
type KeyFunc func(e Entry) (key, iv []byte, ok bool)

// KeyFor implements KeyProvider.
func (f KeyFunc) KeyFor(e Entry) ([]byte, []byte, bool) {
	return f(e)
}

// extractor turns entries into output bytes.
type extractor struct {
	buf       []byte
	entries   []Entry
	dec       *codec.Decoder
	decrypter Decrypter
	keys      KeyProvider
	raw       bool
	logger    *slog.Logger
}

func newExtractor(a *Archive, buf []byte, entries []Entry) *extractor {
	decrypter := a.decrypter
	if decrypter == nil {
		decrypter = crypt.AESCBC{}
	}
	return &extractor{
		buf:       buf,
		entries:   entries,
		dec:       codec.NewDecoder(a.maxEntrySize),
		decrypter: decrypter,
		keys:      a.keys,
		raw:       a.rawEncrypted,
		logger:    a.log(),
	}
}

func entryErr(e *Entry, err error) error {
	return &puptype.EntryError{Index: e.Index, Offset: e.Offset, Size: e.StoredSize, Err: err}
}

func (x *extractor) entry(index int) (*Entry, error) {
	if index < 0 || index >= len(x.entries) {
		return nil, &puptype.EntryError{Index: index, Err: ErrIndexOutOfRange}
	}
	return &x.entries[index], nil
}

// payload returns the output bytes for entry index.
func (x *extractor) payload(index int) ([]byte, error) {
	e, err := x.entry(index)
	if err != nil {
		return nil, err
	}
	if !e.Extractable {
		return nil, entryErr(e, ErrEntryOutOfBounds)
	}

	end, ok := sizing.AddUint64(e.Offset, e.StoredSize)
	if !ok {
		return nil, entryErr(e, ErrRangeOverflow)
	}
	n := uint64(len(x.buf))
	if end > n || e.Offset > n {
		if !e.Recoverable || e.Offset > n {
			return nil, entryErr(e, ErrRangeOverflow)
		}
		x.logger.Warn("clamping entry to end of input", "index", e.Index, "end", end, "len", n)
		end = n
	}
	data := x.buf[e.Offset:end:end]

	if e.IsEncrypted() {
		plain, done, err := x.decrypt(e, data)
		if err != nil {
			return nil, entryErr(e, err)
		}
		if done {
			return plain, nil
		}
		data = plain
	}

	if e.IsSynthetic() || !e.IsCompressed() {
		return data, nil
	}
	res, err := x.dec.Decode(e.Compression, data)
	if err != nil {
		return nil, entryErr(e, err)
	}
	if e.Size > 0 && uint64(len(res.Data)) != e.Size {
		return nil, entryErr(e, fmt.Errorf("%w: decompressed %d bytes, expected %d",
			ErrDecompression, len(res.Data), e.Size))
	}
	return res.Data, nil
}

// decrypt returns the plaintext of data, or data itself with done set when
// the entry is to be written raw.
func (x *extractor) decrypt(e *Entry, data []byte) ([]byte, bool, error) {
	if e.IsSynthetic() {
		if x.raw {
			return data, true, nil
		}
		return nil, false, ErrNoDecryptionKey
	}
	var key, iv []byte
	var ok bool
	if x.keys != nil {
		key, iv, ok = x.keys.KeyFor(*e)
	}
	if !ok {
		if x.raw {
			x.logger.Debug("writing encrypted entry raw", "index", e.Index)
			return data, true, nil
		}
		return nil, false, ErrNoDecryptionKey
	}
	plain, err := x.decrypter.Decrypt(data, key, iv)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrDecryption, err)
	}
	return plain, false, nil
}

// extractTo writes entry index to outputPath, replacing any existing file.
func (x *extractor) extractTo(index int, outputPath string) error {
	data, err := x.payload(index)
	if err != nil {
		return err
	}
	sink, err := batch.NewFileSink(filepath.Dir(outputPath), batch.WithOverwrite(true))
	if err != nil {
		return entryErr(&x.entries[index], fmt.Errorf("%w: %w", ErrIO, err))
	}
	defer sink.Close()
	if _, err := batch.WriteAll(sink, filepath.Base(outputPath), data); err != nil {
		return entryErr(&x.entries[index], fmt.Errorf("%w: %w", ErrIO, err))
	}
	return nil
}
