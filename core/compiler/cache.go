package compiler

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/lru"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/sync/singleflight"

	"github.com/bnb-chain/midtier/core/feedback"
)

// Cache holds compiled artifacts keyed by CacheKey. Concurrent compiles of
// the same key share one run.
type Cache struct {
	artifacts *lru.Cache[common.Hash, *Artifact]
	inflight  singleflight.Group
}

// NewCache returns a cache holding at most size artifacts.
func NewCache(size int) *Cache {
	return &Cache{artifacts: lru.NewCache[common.Hash, *Artifact](size)}
}

// Get retrieves a cached artifact.
func (c *Cache) Get(key common.Hash) (*Artifact, bool) {
	return c.artifacts.Get(key)
}

// Add caches an artifact.
func (c *Cache) Add(key common.Hash, art *Artifact) {
	c.artifacts.Add(key, art)
}

// Remove evicts an artifact.
func (c *Cache) Remove(key common.Hash) {
	c.artifacts.Remove(key)
}

// Len returns the number of cached artifacts.
func (c *Cache) Len() int {
	return c.artifacts.Len()
}

// do runs fn once for every group of concurrent callers asking for key.
func (c *Cache) do(key common.Hash, fn func() (*Artifact, error)) (*Artifact, error) {
	v, err, _ := c.inflight.Do(key.Hex(), func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	return v.(*Artifact), nil
}

// CacheKey hashes what a compilation of fn reads from fn itself: its code,
// constant pool, frame shape and the epoch of its feedback.
func CacheKey(fn *feedback.JSFunction) common.Hash {
	arr := fn.Shared.Bytecode
	var head []byte
	head = binary.BigEndian.AppendUint32(head, uint32(len(fn.Name())))
	head = binary.BigEndian.AppendUint32(head, uint32(len(arr.Code)))
	head = binary.BigEndian.AppendUint32(head, uint32(arr.ParameterCount))
	head = binary.BigEndian.AppendUint32(head, uint32(arr.RegisterCount))
	if fn.Shared.Strict {
		head = append(head, 1)
	} else {
		head = append(head, 0)
	}
	if fn.Vector != nil {
		head = append(head, 1)
		head = binary.BigEndian.AppendUint64(head, fn.Vector.Epoch())
	} else {
		head = append(head, 0)
	}

	head = binary.BigEndian.AppendUint32(head, uint32(len(arr.Constants)))

	parts := [][]byte{head, []byte(fn.Name()), arr.Code}
	for _, c := range arr.Constants {
		text := c.String()
		tag := binary.BigEndian.AppendUint32([]byte{byte(c.Kind())}, uint32(len(text)))
		parts = append(parts, tag, []byte(text))
	}
	return crypto.Keccak256Hash(parts...)
}
