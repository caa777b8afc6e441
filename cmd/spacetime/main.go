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

// Command spacetime assembles georeferenced raster files into space-time
// data cubes.
package main

import (
	"fmt"
	"os"

	"github.com/spatialmodel/spacetime/spacetimeutil"
)

func main() {
	if err := spacetimeutil.Root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
