package utils

import (
	"hash/maphash"

	"github.com/exascience/pargo/sync"
)

// A Symbol is an interned string. INFO and FORMAT keys, FILTER names
// and header ids are compared by pointer once interned.
type Symbol *string

type symbolKey string

var (
	symbolSeed  = maphash.MakeSeed()
	symbolTable = sync.NewMap(0)
)

func (key symbolKey) Hash() uint64 {
	return maphash.String(symbolSeed, string(key))
}

// Intern returns the Symbol for s. Equal strings always yield the same
// Symbol, different strings never do, and *Intern(s) == s.
//
// Intern is safe for concurrent use; the record pipeline parses VCF
// lines on several goroutines at once.
func Intern(s string) Symbol {
	entry, _ := symbolTable.LoadOrStore(symbolKey(s), Symbol(&s))
	return entry.(Symbol)
}
