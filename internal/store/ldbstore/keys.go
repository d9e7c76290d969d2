package ldbstore

import (
	"encoding/binary"
	"strings"
)

var (
	accountPrefix   = []byte("acct/")
	publicKeyPrefix = []byte("pk/")
	delegatePrefix  = []byte("dlg/")
	voteLinkPrefix  = []byte("vote/")
	blockPrefix     = []byte("blk/")
	blockIDPrefix   = []byte("blkid/")
	blockRndPrefix  = []byte("blkrnd/")
	entryPrefix     = []byte("ent/")
	snapshotPrefix  = []byte("snap/")
	roundPrefix     = []byte("rnd/")

	entrySeqKey = []byte("meta/entry-seq")
)

func join(prefix []byte, parts ...[]byte) []byte {
	n := len(prefix)
	for _, p := range parts {
		n += len(p)
	}
	key := make([]byte, 0, n)
	key = append(key, prefix...)
	for _, p := range parts {
		key = append(key, p...)
	}
	return key
}

func be64(v int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return b[:]
}

func accountKey(address string) []byte    { return join(accountPrefix, []byte(address)) }
func publicKeyKey(pk string) []byte       { return join(publicKeyPrefix, []byte(pk)) }
func delegateKey(address string) []byte   { return join(delegatePrefix, []byte(address)) }
func blockKey(height int64) []byte        { return join(blockPrefix, be64(height)) }
func blockIDKey(id string) []byte         { return join(blockIDPrefix, []byte(id)) }
func snapshotKey(round int64) []byte      { return join(snapshotPrefix, be64(round)) }
func roundKey(round int64) []byte         { return join(roundPrefix, be64(round)) }
func entryRoundPrefix(round int64) []byte { return join(entryPrefix, be64(round)) }

func roundBlockPrefix(round int64) []byte { return join(blockRndPrefix, be64(round)) }

func roundBlockKey(round, height int64) []byte {
	return join(blockRndPrefix, be64(round), be64(height))
}

func entryKey(round int64, seq uint64) []byte {
	return join(entryPrefix, be64(round), be64(int64(seq)))
}

func voterPrefix(voter string) []byte {
	return join(voteLinkPrefix, []byte(voter), []byte("/"))
}

func voteLinkKey(voter, delegate string) []byte {
	return join(voterPrefix(voter), []byte(delegate))
}

// suffix returns the part of key after prefix as a string.
func suffix(key, prefix []byte) string {
	return strings.TrimPrefix(string(key), string(prefix))
}

// trailingInt64 decodes the big-endian integer that ends key.
func trailingInt64(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key[len(key)-8:]))
}
