package schema

import (
	"dario.cat/mergo"

	"github.com/alexisbeaulieu97/sc/pkg/scerrors"
)

// Merge fans another store's tree into this one: scalars from src override
// dst unless dst is non-empty and clobber is false, branches absent from dst
// are adopted wholesale, and list parameters either union-append (clear is
// false) or are replaced wholesale by src (clear is true) (spec.md §4.1
// "merge", used by the orchestrator to fold a completed worker's cfg back
// into the shared manifest, spec.md §4.4 step 5, and by the run command to
// load a seed manifest into a fresh store).
func (s *Store) Merge(src *Store, clobber, clear bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src.mu.RLock()
	defer src.mu.RUnlock()

	merged, err := mergeNodes(s.root, src.root, clobber, clear)
	if err != nil {
		return s.fail(scerrors.NewSchemaError("", "", err))
	}
	s.root = merged
	return nil
}

func mergeNodes(dst, src *Node, clobber, clear bool) (*Node, error) {
	if src == nil {
		return dst, nil
	}
	if dst == nil {
		return src.clone(), nil
	}

	if src.Param != nil && dst.Param != nil {
		if err := mergeParams(dst, src, clobber, clear); err != nil {
			return nil, err
		}
		return dst, nil
	}
	if src.Param != nil || dst.Param != nil {
		// Shape mismatch between trees; src wins, mirroring mergo's default
		// WithOverride-less behaviour of preferring a populated field.
		return src.clone(), nil
	}

	out := dst
	for k, schild := range src.Children {
		dchild, ok := out.Children[k]
		if !ok {
			out.Children[k] = schild.clone()
			continue
		}
		merged, err := mergeNodes(dchild, schild, clobber, clear)
		if err != nil {
			return nil, err
		}
		out.Children[k] = merged
	}
	return out, nil
}

// paramLists isolates the append-only, parallel-to-Value slice fields of a
// Param so mergo.Merge only ever touches list data: merging the full Param
// struct would let a zero-value bool field (Lock, Copy) on src silently
// clobber a true on dst under mergo.WithOverride.
type paramLists struct {
	Value     []string
	FileHash  []string
	Signature []string
	Date      []string
	Author    []string
}

// mergeParams applies spec.md §4.1's merge rules to one leaf pair, using
// dario.cat/mergo for both the replace (clear=true or a clobbered scalar)
// and append (clear=false) list cases; mergo has no built-in de-duplicating
// append, so the union case runs mergo.WithAppendSlice and then dedupes by
// hand, matching the teacher's convention of reaching for mergo for struct
// merging and hand-rolling only what the library doesn't offer.
func mergeParams(dst, src *Node, clobber, clear bool) error {
	dp, sp := dst.Param, src.Param
	srcLists := paramLists{Value: sp.Value, FileHash: sp.FileHash, Signature: sp.Signature, Date: sp.Date, Author: sp.Author}

	if dp.IsList {
		if clear {
			if len(srcLists.Value) == 0 {
				return nil
			}
			dstLists := paramLists{}
			if err := mergo.Merge(&dstLists, srcLists, mergo.WithOverride); err != nil {
				return err
			}
			applyLists(dp, dstLists)
			return nil
		}
		dstLists := paramLists{Value: dp.Value, FileHash: dp.FileHash, Signature: dp.Signature, Date: dp.Date, Author: dp.Author}
		if err := mergo.Merge(&dstLists, srcLists, mergo.WithAppendSlice); err != nil {
			return err
		}
		applyLists(dp, dedupeLists(dstLists))
		return nil
	}

	if (clobber || len(dp.Value) == 0) && len(srcLists.Value) > 0 {
		dstLists := paramLists{}
		if err := mergo.Merge(&dstLists, srcLists, mergo.WithOverride); err != nil {
			return err
		}
		applyLists(dp, dstLists)
	}
	return nil
}

// applyLists writes l into p, copying each slice so p never ends up aliasing
// the source store's backing arrays.
func applyLists(p *Param, l paramLists) {
	p.Value = append([]string(nil), l.Value...)
	p.FileHash = append([]string(nil), l.FileHash...)
	p.Signature = append([]string(nil), l.Signature...)
	p.Date = append([]string(nil), l.Date...)
	p.Author = append([]string(nil), l.Author...)
}

func dedupeLists(l paramLists) paramLists {
	// Value, FileHash, Signature, Date, and Author are parallel arrays (one
	// entry per recorded file): a repeated Value entry is dropped together
	// with the same index of every parallel field as long as Value, so the
	// indices stay aligned.
	keep := make([]bool, len(l.Value))
	seen := make(map[string]bool, len(l.Value))
	for i, v := range l.Value {
		keep[i] = !seen[v]
		seen[v] = true
	}
	for _, xs := range []*[]string{&l.FileHash, &l.Signature, &l.Date, &l.Author, &l.Value} {
		if len(*xs) != len(keep) {
			continue
		}
		out := make([]string, 0, len(seen))
		for i, x := range *xs {
			if keep[i] {
				out = append(out, x)
			}
		}
		*xs = out
	}
	return l
}

func dedupeStrings(vals []string) []string {
	seen := make(map[string]bool, len(vals))
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// Prune removes every branch that is empty (no parameters beneath it) or
// whose leaves all carry empty values, the equivalent of the teacher's
// history snapshot compaction before persisting a jobid's cfg to disk.
func Prune(n *Node) *Node {
	if n == nil {
		return nil
	}
	if n.Param != nil {
		if len(n.Param.Value) == 0 && len(n.Param.DefValue) == 0 {
			return nil
		}
		return n
	}
	out := newBranch()
	for k, child := range n.Children {
		if k == "default" {
			continue
		}
		if pruned := Prune(child); pruned != nil {
			out.Children[k] = pruned
		}
	}
	if len(out.Children) == 0 {
		return nil
	}
	return out
}
