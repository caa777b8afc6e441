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

package spacetimeutil

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spatialmodel/spacetime"
	"github.com/tealeg/xlsx"
)

const timeLayout = "2006-01-02T15:04:05Z07:00"

// Export formats.
const (
	CSV  = "csv"
	XLSX = "xlsx"
)

// exportFormat returns the export format, inferring it from the
// extension of output when format is empty.
func exportFormat(format, output string) (string, error) {
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(output), ".")
	}
	switch f := strings.ToLower(format); f {
	case CSV, XLSX:
		return f, nil
	default:
		return "", fmt.Errorf("spacetimeutil: invalid export format %q; valid formats are %s and %s", format, CSV, XLSX)
	}
}

// Export writes the cube at input to output as a table with one row per
// latitude, longitude, variable and time step.
func Export(ctx context.Context, t *Transfer, input, output, format string) error {
	format, err := exportFormat(format, output)
	if err != nil {
		return err
	}
	c, err := t.load(ctx, input)
	if err != nil {
		return err
	}
	local, err := t.Output(output)
	if err != nil {
		return err
	}
	header, rows := table(c)
	switch format {
	case CSV:
		f, err := os.Create(local)
		if err != nil {
			return fmt.Errorf("spacetimeutil: %v", err)
		}
		if err := WriteCSV(f, header, rows); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("spacetimeutil: %v", err)
		}
	case XLSX:
		if err := WriteXLSX(local, header, rows); err != nil {
			return err
		}
	}
	t.log().WithField("file", output).WithField("rows", len(rows)).Info("exported records")
	return t.Upload(ctx)
}

// table converts the records of c to rows of cells. Numeric cells are
// float64 and all others are strings. The variable column is omitted for
// single-array cubes and the time column holds step indices for cubes
// without timestamps.
func table(c *spacetime.Cube) ([]string, [][]interface{}) {
	multiVar := c.VarNames != nil
	stamps := c.Time.IsTimestamps()
	header := []string{"lat", "lon"}
	if multiVar {
		header = append(header, "variable")
	}
	header = append(header, "time", "value")

	recs := c.Records()
	rows := make([][]interface{}, len(recs))
	for i, r := range recs {
		row := []interface{}{r.Lat, r.Lon}
		if multiVar {
			row = append(row, r.Var)
		}
		if stamps {
			row = append(row, r.Time.Format(timeLayout))
		} else {
			row = append(row, float64(r.Step))
		}
		rows[i] = append(row, r.Value)
	}
	return header, rows
}

// WriteCSV writes a header line and rows to w.
func WriteCSV(w io.Writer, header []string, rows [][]interface{}) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("spacetimeutil: writing csv: %v", err)
	}
	line := make([]string, len(header))
	for _, row := range rows {
		for j, v := range row {
			switch v := v.(type) {
			case float64:
				line[j] = strconv.FormatFloat(v, 'g', -1, 64)
			default:
				line[j] = fmt.Sprint(v)
			}
		}
		if err := cw.Write(line[:len(row)]); err != nil {
			return fmt.Errorf("spacetimeutil: writing csv: %v", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("spacetimeutil: writing csv: %v", err)
	}
	return nil
}

// WriteXLSX writes a header line and rows to a spreadsheet at path.
func WriteXLSX(path string, header []string, rows [][]interface{}) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("records")
	if err != nil {
		return fmt.Errorf("spacetimeutil: creating spreadsheet: %v", err)
	}
	hr := sheet.AddRow()
	for _, h := range header {
		hr.AddCell().SetString(h)
	}
	for _, row := range rows {
		r := sheet.AddRow()
		for _, v := range row {
			cell := r.AddCell()
			switch v := v.(type) {
			case float64:
				cell.SetFloat(v)
			default:
				cell.SetString(fmt.Sprint(v))
			}
		}
	}
	if err := f.Save(path); err != nil {
		return fmt.Errorf("spacetimeutil: saving spreadsheet: %v", err)
	}
	return nil
}
