// elPrep: a high-performance tool for preparing SAM/BAM files.
// Copyright (c) 2017, 2018 imec vzw.

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

package utils

// SmallMapEntry is an entry in a SmallMap.
type SmallMapEntry[K comparable, V any] struct {
	Key   K
	Value V
}

// A SmallMap is an ordered association list. INFO and FORMAT data
// carry only a handful of keys per record, so a slice beats a native
// map, and the slice keeps the order in which the fields were read.
type SmallMap[K comparable, V any] []SmallMapEntry[K, V]

// Get returns the value of the first entry with the given key.
func (m SmallMap[K, V]) Get(key K) (value V, found bool) {
	for _, entry := range m {
		if entry.Key == key {
			return entry.Value, true
		}
	}
	return
}

// Set replaces the value of the first entry with the given key, or
// appends a new entry at the end.
func (m *SmallMap[K, V]) Set(key K, value V) {
	for index := range *m {
		if (*m)[index].Key == key {
			(*m)[index].Value = value
			return
		}
	}
	*m = append(*m, SmallMapEntry[K, V]{key, value})
}

// Delete removes the first entry with the given key. The remaining
// entries keep their order.
func (m SmallMap[K, V]) Delete(key K) (SmallMap[K, V], bool) {
	for index, entry := range m {
		if entry.Key == key {
			return append(m[:index], m[index+1:]...), true
		}
	}
	return m, false
}

// Keys returns the keys in entry order.
func (m SmallMap[K, V]) Keys() []K {
	keys := make([]K, len(m))
	for i, entry := range m {
		keys[i] = entry.Key
	}
	return keys
}
