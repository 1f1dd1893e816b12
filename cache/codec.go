package cache

import (
	"bytes"
	"compress/flate"
	"crypto/md5"
	"encoding/gob"
	"fmt"
	"io"
)

func init() {
	// Register the concrete types most callers store so gob can decode
	// back into the interface{} envelope. Callers storing other concrete
	// types must gob.Register them before using the L2/L3 tiers.
	gob.Register("")
	gob.Register([]byte(nil))
	gob.Register(map[string]interface{}{})
	gob.Register(map[string]string{})
	gob.Register([]interface{}(nil))
	gob.Register(0)
	gob.Register(float64(0))
	gob.Register(false)
}

// serialize encodes an arbitrary cached value into a language-neutral byte
// form (Go's gob wire format) suitable for both the L2 compressed tier and
// L3 on-disk storage.
func serialize(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func deserialize(b []byte) (interface{}, error) {
	var v interface{}
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// compress deflates serialized bytes for the L2 tier. The codec is lossless
// and symmetric with decompress, so promotion back to L1 reproduces the
// exact original value.
func compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(compressed []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()
	return io.ReadAll(r)
}

// diskFilename derives the stable on-disk filename for an L3 entry: the hex
// digest of an MD5 hash of the cache key.
func diskFilename(key string) string {
	sum := md5.Sum([]byte(key))
	return fmt.Sprintf("%x", sum)
}
