// elPrep: a high-performance tool for analyzing SAM/BAM files.
// Copyright (c) 2017-2020 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/elprep/blob/master/LICENSE.txt>.

package bcf

import "fmt"

// Domain identifies what a Dictionary names.
type Domain int

// The dictionary domains of a Header.
const (
	ContigDomain Domain = iota
	SampleDomain
	FieldDomain
)

func (d Domain) String() string {
	switch d {
	case ContigDomain:
		return "contig"
	case SampleDomain:
		return "sample"
	case FieldDomain:
		return "field"
	default:
		return fmt.Sprintf("Domain(%d)", int(d))
	}
}

type dictionaryEntry struct {
	name  string
	value interface{}
	valid bool
}

// A Dictionary maps dense, stable integer ids to unique names and an
// optional value per entry. Ids are never reused. A Dictionary loaded
// from a binary prologue may have holes.
//
// A Dictionary is not safe for concurrent mutation.
type Dictionary struct {
	domain  Domain
	entries []dictionaryEntry
	ids     map[string]int32
}

// NewDictionary creates an empty dictionary for the given domain.
func NewDictionary(domain Domain) *Dictionary {
	return &Dictionary{domain: domain, ids: make(map[string]int32)}
}

// BuildDictionary creates a dictionary with the given names, in
// order, with ids 0..len(names)-1.
func BuildDictionary(domain Domain, names []string) (*Dictionary, error) {
	dict := &Dictionary{
		domain:  domain,
		entries: make([]dictionaryEntry, 0, len(names)),
		ids:     make(map[string]int32, len(names)),
	}
	for _, name := range names {
		if _, err := dict.Add(name, nil); err != nil {
			return nil, err
		}
	}
	return dict, nil
}

// Domain returns the domain of the dictionary.
func (dict *Dictionary) Domain() Domain {
	return dict.domain
}

// Add appends a new entry with the next dense id.
func (dict *Dictionary) Add(name string, value interface{}) (int32, error) {
	if _, found := dict.ids[name]; found {
		return -1, &DuplicateNameError{Domain: dict.domain, Name: name}
	}
	id := int32(len(dict.entries))
	dict.entries = append(dict.entries, dictionaryEntry{name: name, value: value, valid: true})
	dict.ids[name] = id
	return id, nil
}

// insert places an entry at an explicit id, leaving holes for ids
// that are skipped.
func (dict *Dictionary) insert(id int32, name string, value interface{}) error {
	if existing, found := dict.ids[name]; found {
		if existing == id {
			return nil
		}
		return &DuplicateNameError{Domain: dict.domain, Name: name}
	}
	if id < 0 {
		return fmt.Errorf("negative IDX %v for %v %v", id, dict.domain, name)
	}
	for int32(len(dict.entries)) <= id {
		dict.entries = append(dict.entries, dictionaryEntry{})
	}
	if dict.entries[id].valid {
		return fmt.Errorf("IDX %v of %v %v already used by %v", id, dict.domain, name, dict.entries[id].name)
	}
	dict.entries[id] = dictionaryEntry{name: name, value: value, valid: true}
	dict.ids[name] = id
	return nil
}

// ID returns the id for the given name.
func (dict *Dictionary) ID(name string) (int32, bool) {
	id, found := dict.ids[name]
	return id, found
}

// Name returns the name for the given id.
func (dict *Dictionary) Name(id int32) (string, bool) {
	if id < 0 || int(id) >= len(dict.entries) || !dict.entries[id].valid {
		return "", false
	}
	return dict.entries[id].name, true
}

// Value returns the value stored with the given id.
func (dict *Dictionary) Value(id int32) (interface{}, bool) {
	if id < 0 || int(id) >= len(dict.entries) || !dict.entries[id].valid {
		return nil, false
	}
	return dict.entries[id].value, true
}

func (dict *Dictionary) setValue(id int32, value interface{}) {
	dict.entries[id].value = value
}

// Len returns the size of the id space, including holes.
func (dict *Dictionary) Len() int {
	return len(dict.entries)
}

// Count returns the number of entries, excluding holes.
func (dict *Dictionary) Count() int {
	return len(dict.ids)
}

// Names returns all names in id order.
func (dict *Dictionary) Names() []string {
	names := make([]string, 0, len(dict.ids))
	for _, entry := range dict.entries {
		if entry.valid {
			names = append(names, entry.name)
		}
	}
	return names
}

// Clone returns a deep copy with the same ids. If cloneValue is not
// nil, it is used to copy the entry values.
func (dict *Dictionary) Clone(cloneValue func(interface{}) interface{}) *Dictionary {
	result := &Dictionary{
		domain:  dict.domain,
		entries: make([]dictionaryEntry, len(dict.entries)),
		ids:     make(map[string]int32, len(dict.ids)),
	}
	copy(result.entries, dict.entries)
	for name, id := range dict.ids {
		result.ids[name] = id
	}
	if cloneValue != nil {
		for i := range result.entries {
			if result.entries[i].valid && result.entries[i].value != nil {
				result.entries[i].value = cloneValue(result.entries[i].value)
			}
		}
	}
	return result
}
