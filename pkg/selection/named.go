// Copyright 2022 Metrika Inc.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package selection

// Named is anything identified by a dataset name.
type Named interface {
	Name() string
}

// Ident is a bare dataset name usable wherever a Named is expected.
type Ident string

func (i Ident) Name() string { return string(i) }

// Same reports whether a and b share an identity.
func Same(a, b Named) bool {
	return a.Name() == b.Name()
}

// Less orders by identity.
func Less(a, b Named) bool {
	return a.Name() < b.Name()
}

// Index returns the position of name in set, or -1.
func Index[E Named](set []E, name string) int {
	for i, e := range set {
		if e.Name() == name {
			return i
		}
	}

	return -1
}

// Contains reports whether set holds an element named name.
func Contains[E Named](set []E, name string) bool {
	return Index(set, name) >= 0
}

// Names returns the identities of set in order.
func Names[E Named](set []E) []string {
	out := make([]string, len(set))
	for i, e := range set {
		out[i] = e.Name()
	}

	return out
}
