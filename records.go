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

package spacetime

import (
	"time"
)

// Record is the value of one variable at one pixel and time step.
type Record struct {
	Lat, Lon float64

	// Var is the variable name, or SingleVarName for single-array cubes.
	Var string

	// Time is the timestamp of the time step. It is the zero time for
	// cubes without timestamps; see Step.
	Time time.Time
	Step int

	Value float64
}

// Records flattens the cube into one record per latitude, longitude,
// variable and time step, nested in that order.
func (c *Cube) Records() []Record {
	ts, _ := c.Time.Times()
	nt, ny, nx := c.Dims()
	names := c.Names()
	o := make([]Record, 0, nt*ny*nx*len(names))
	for y, lat := range c.Lat {
		for x, lon := range c.Lon {
			for v, name := range names {
				d := c.Data[v]
				for t := 0; t < nt; t++ {
					r := Record{
						Lat:   lat,
						Lon:   lon,
						Var:   name,
						Step:  t,
						Value: d.Elements[(t*ny+y)*nx+x],
					}
					if ts != nil {
						r.Time = ts[t]
					}
					o = append(o, r)
				}
			}
		}
	}
	return o
}
