package repository

import (
	"cmp"
	"slices"
	"strings"
)

// foldName is the key used by the name index.
func foldName(name string) string {
	return strings.ToLower(name)
}

// =====================================================
// NAME INDEX
// =====================================================

type nameEntry struct {
	key   string
	order uint64
	id    string
}

func compareNameEntry(a, b nameEntry) int {
	if c := strings.Compare(a.key, b.key); c != 0 {
		return c
	}
	return cmp.Compare(a.order, b.order)
}

// nameIndex keeps (folded name, insertion order) -> id sorted.
type nameIndex struct {
	entries []nameEntry
}

func (x *nameIndex) insert(name string, order uint64, id string) {
	e := nameEntry{key: foldName(name), order: order, id: id}
	pos, _ := slices.BinarySearchFunc(x.entries, e, compareNameEntry)
	x.entries = slices.Insert(x.entries, pos, e)
}

func (x *nameIndex) remove(name string, order uint64) {
	e := nameEntry{key: foldName(name), order: order}
	if pos, found := slices.BinarySearchFunc(x.entries, e, compareNameEntry); found {
		x.entries = slices.Delete(x.entries, pos, pos+1)
	}
}

// contains returns ids whose name contains substr, in index order.
func (x *nameIndex) contains(substr string) []string {
	needle := foldName(substr)
	ids := make([]string, 0)
	for _, e := range x.entries {
		if strings.Contains(e.key, needle) {
			ids = append(ids, e.id)
		}
	}
	return ids
}

// =====================================================
// SCORE INDEX
// =====================================================

type scoreEntry struct {
	score int
	order uint64
	id    string
}

// compareScoreEntry sorts by score descending, then insertion order.
func compareScoreEntry(a, b scoreEntry) int {
	if c := cmp.Compare(b.score, a.score); c != 0 {
		return c
	}
	return cmp.Compare(a.order, b.order)
}

type scoreIndex struct {
	entries []scoreEntry
}

func (x *scoreIndex) insert(score int, order uint64, id string) {
	e := scoreEntry{score: score, order: order, id: id}
	pos, _ := slices.BinarySearchFunc(x.entries, e, compareScoreEntry)
	x.entries = slices.Insert(x.entries, pos, e)
}

func (x *scoreIndex) remove(score int, order uint64) {
	e := scoreEntry{score: score, order: order}
	if pos, found := slices.BinarySearchFunc(x.entries, e, compareScoreEntry); found {
		x.entries = slices.Delete(x.entries, pos, pos+1)
	}
}

// top returns the first limit ids; limit < 0 returns all.
func (x *scoreIndex) top(limit int) []string {
	n := len(x.entries)
	if limit >= 0 && limit < n {
		n = limit
	}
	ids := make([]string, 0, n)
	for _, e := range x.entries[:n] {
		ids = append(ids, e.id)
	}
	return ids
}
