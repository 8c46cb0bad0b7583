package store

import (
	"crypto/sha256"
	"fmt"
	"sort"
)

// ComputeSignatureHash computes a deterministic hash from a declaration's
// semantic identity: name, kind, type, object-ness, global-ness and the
// qualified name of its parent. Location changes do NOT affect the hash.
func ComputeSignatureHash(name, kind, typeName, parent string, isObject, isGlobal bool) string {
	h := sha256.New()
	fmt.Fprintf(h, "name:%s\n", name)
	fmt.Fprintf(h, "kind:%s\n", kind)
	fmt.Fprintf(h, "type:%s\n", typeName)
	fmt.Fprintf(h, "parent:%s\n", parent)
	fmt.Fprintf(h, "object:%v\n", isObject)
	fmt.Fprintf(h, "global:%v\n", isGlobal)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// ComputeLibraryHash combines declaration signature hashes into one hash
// for a library. Order-independent: hashes are sorted first.
func ComputeLibraryHash(signatureHashes []string) string {
	sorted := make([]string, len(signatureHashes))
	copy(sorted, signatureHashes)
	sort.Strings(sorted)

	h := sha256.New()
	for _, sh := range sorted {
		fmt.Fprintf(h, "%s\n", sh)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
