/*
Copyright © 2019 the spacetime authors.
This file is part of spacetime.

spacetime is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

spacetime is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with spacetime.  If not, see <http://www.gnu.org/licenses/>.
*/

package hash

import (
	"math"
	"testing"
)

type content struct {
	Names []string
	Data  []float64
}

func TestHash(t *testing.T) {
	a := Hash(content{Names: []string{"a"}, Data: []float64{1, 2}})
	b := Hash(content{Names: []string{"a"}, Data: []float64{1, 2}})
	c := Hash(content{Names: []string{"a"}, Data: []float64{1, 3}})
	if a != b {
		t.Errorf("equal values hash differently: %s != %s", a, b)
	}
	if a == c {
		t.Error("different values have the same hash")
	}
	if len(a) != 32 {
		t.Errorf("hash length: %d", len(a))
	}
}

func TestHashNaN(t *testing.T) {
	a := Hash(content{Data: []float64{math.NaN(), 1}})
	b := Hash(content{Data: []float64{math.NaN(), 1}})
	if a != b {
		t.Errorf("NaN values hash differently: %s != %s", a, b)
	}
}

func TestHashUnencodable(t *testing.T) {
	// Channels cannot be gob-encoded.
	a := Hash(struct{ C chan int }{})
	b := Hash(struct{ C chan int }{})
	if a != b || a == "" {
		t.Errorf("fallback hashes: %s, %s", a, b)
	}
}
