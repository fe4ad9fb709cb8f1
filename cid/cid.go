// Package cid computes content identifiers for resource files.
//
// Identifiers are CIDv1 with the raw codec, rendered in base32. The
// digest is a multihash, sha2-256 unless configured otherwise, so the
// same bytes always map to the same identifier regardless of the name
// or location of the file they were read from.
package cid

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"

	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/zeebo/blake3"
)

type Algorithm string

const (
	SHA256 Algorithm = "sha2-256"
	BLAKE3 Algorithm = "blake3"
)

var ErrUnknownAlgorithm = errors.New("unknown hash algorithm")

var defaultAddresser = &Addresser{algorithm: SHA256}

// Identify returns the sha2-256 CID of data.
func Identify(data []byte) string {
	return defaultAddresser.Identify(data)
}

// Validate returns an error if s is not a well formed CID.
func Validate(s string) error {
	_, err := gocid.Decode(s)
	if err != nil {
		return fmt.Errorf("invalid cid %q: %w", s, err)
	}
	return nil
}

type Addresser struct {
	algorithm Algorithm
}

func New(algorithm Algorithm) (*Addresser, error) {
	switch algorithm {
	case "":
		return &Addresser{algorithm: SHA256}, nil
	case SHA256, BLAKE3:
		return &Addresser{algorithm: algorithm}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algorithm)
	}
}

func (a *Addresser) Algorithm() Algorithm {
	return a.algorithm
}

func (a *Addresser) Identify(data []byte) string {
	h := a.newHash()
	// hash.Hash writes never fail.
	_, _ = h.Write(data)
	return a.encode(h.Sum(nil))
}

// IdentifyReader returns the CID of everything read from r.
// It will not close the reader.
func (a *Addresser) IdentifyReader(r io.Reader) (string, error) {
	h := a.newHash()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return a.encode(h.Sum(nil)), nil
}

// IdentifyFile returns the CID of the file at path.
func (a *Addresser) IdentifyFile(path string) (id string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		err = errors.Join(err, file.Close())
	}()

	return a.IdentifyReader(file)
}

func (a *Addresser) newHash() hash.Hash {
	if a.algorithm == BLAKE3 {
		return blake3.New()
	}
	return sha256.New()
}

func (a *Addresser) encode(digest []byte) string {
	code := uint64(multihash.SHA2_256)
	if a.algorithm == BLAKE3 {
		code = multihash.BLAKE3
	}
	mh, err := multihash.Encode(digest, code)
	if err != nil {
		// Only possible for unregistered codes or oversized digests.
		panic("cid: multihash encoding failed: " + err.Error())
	}
	return gocid.NewCidV1(gocid.Raw, mh).String()
}
