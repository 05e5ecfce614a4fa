// Package merkle builds inclusion proofs over veto signals. A leaf binds a
// signal to its anonymous voting key, so a proof shows a signal was counted
// without naming the node that sent it.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"commons-governance/errs"
	"commons-governance/models"
)

// Step is one sibling on the path from a leaf to the root. IsLeft is true
// when the sibling sits to the left of the running hash.
type Step struct {
	Hash   string `json:"hash"`
	IsLeft bool   `json:"is_left"`
}

// Proof shows that LeafData is included under RootHash.
type Proof struct {
	RootHash string `json:"root_hash"`
	Path     []Step `json:"path"`
	LeafData string `json:"leaf_data"`
}

// Tree is the result of Build.
type Tree struct {
	Root   string            `json:"root"`
	Proofs map[string]*Proof `json:"proofs"` // keyed by voting public key
}

func hashPair(left, right []byte) []byte {
	h := sha256.New()
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

func hashLeaf(data string) []byte {
	sum := sha256.Sum256([]byte(data))
	return sum[:]
}

// LeafData is voting_key ":" hex(sha256(proposal:type:weight:timestamp)).
func LeafData(s *models.VetoSignal) string {
	payload := strconv.FormatInt(s.ProposalID, 10) + ":" +
		string(s.Type) + ":" +
		strconv.FormatFloat(s.Weight, 'f', -1, 64) + ":" +
		s.Timestamp.UTC().Format(time.RFC3339Nano)
	sum := sha256.Sum256([]byte(payload))
	return s.VotingPublicKey + ":" + hex.EncodeToString(sum[:])
}

// levels returns every tree level, leaves first. Odd levels pair their last
// node with itself, and a single leaf still gets one level above it.
func levels(leaves [][]byte) [][][]byte {
	out := [][][]byte{leaves}
	cur := leaves
	for {
		next := make([][]byte, 0, (len(cur)+1)/2)
		for i := 0; i < len(cur); i += 2 {
			right := cur[i]
			if i+1 < len(cur) {
				right = cur[i+1]
			}
			next = append(next, hashPair(cur[i], right))
		}
		out = append(out, next)
		cur = next
		if len(cur) == 1 {
			return out
		}
	}
}

// Build computes the root over signals and a proof for each of them. Every
// signal needs a distinct voting public key.
func Build(signals []*models.VetoSignal) (*Tree, error) {
	const op = "merkle.Build"
	if len(signals) == 0 {
		return nil, errs.New(errs.Validation, op, "no signals to build a tree from")
	}

	leafData := make([]string, len(signals))
	leaves := make([][]byte, len(signals))
	seen := make(map[string]struct{}, len(signals))
	for i, s := range signals {
		if s.VotingPublicKey == "" {
			return nil, errs.New(errs.Validation, op, "signal %s has no voting public key", s.ID)
		}
		if _, dup := seen[s.VotingPublicKey]; dup {
			return nil, errs.New(errs.Validation, op, "voting key %s used by more than one signal", s.VotingPublicKey)
		}
		seen[s.VotingPublicKey] = struct{}{}
		leafData[i] = LeafData(s)
		leaves[i] = hashLeaf(leafData[i])
	}

	lv := levels(leaves)
	root := hex.EncodeToString(lv[len(lv)-1][0])

	tree := &Tree{Root: root, Proofs: make(map[string]*Proof, len(signals))}
	for i, s := range signals {
		path := make([]Step, 0, len(lv)-1)
		idx := i
		for _, level := range lv[:len(lv)-1] {
			sib := idx ^ 1
			if sib >= len(level) {
				sib = idx
			}
			path = append(path, Step{Hash: hex.EncodeToString(level[sib]), IsLeft: idx%2 == 1})
			idx /= 2
		}
		tree.Proofs[s.VotingPublicKey] = &Proof{RootHash: root, Path: path, LeafData: leafData[i]}
	}
	return tree, nil
}

// Verify recomputes the root from the proof. It never errors; malformed
// hex or hashes of the wrong length simply fail verification.
func Verify(p *Proof) bool {
	if p == nil {
		return false
	}
	cur := hashLeaf(p.LeafData)
	for _, step := range p.Path {
		sib, err := hex.DecodeString(step.Hash)
		if err != nil || len(sib) != sha256.Size {
			return false
		}
		if step.IsLeft {
			cur = hashPair(sib, cur)
		} else {
			cur = hashPair(cur, sib)
		}
	}
	root, err := hex.DecodeString(p.RootHash)
	if err != nil || len(root) != sha256.Size {
		return false
	}
	return bytes.Equal(cur, root)
}
