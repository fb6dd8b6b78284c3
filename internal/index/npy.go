package index

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// writeNPY stores rows as a C-ordered (len(rows), dim) float64 array, which
// numpy.load reads back as a two-dimensional matrix.
func writeNPY(w io.Writer, rows [][]float32, dim int) error {
	if len(rows) == 0 || dim <= 0 {
		return errors.New("npy: empty matrix")
	}
	flat := make([]float64, 0, len(rows)*dim)
	for i, row := range rows {
		if len(row) != dim {
			return fmt.Errorf("npy: row %d has %d values, want %d", i, len(row), dim)
		}
		for _, v := range row {
			flat = append(flat, float64(v))
		}
	}
	return npyio.Write(w, mat.NewDense(len(rows), dim, flat))
}

// readNPY decodes a two-dimensional little-endian float32 or float64
// C-order array into float32 rows. The declared shape must fit in data.
func readNPY(data []byte) ([][]float32, error) {
	r, err := npyio.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("npy: %w", err)
	}
	descr := r.Header.Descr
	if descr.Fortran {
		return nil, errors.New("npy: only C-order arrays are supported")
	}
	if len(descr.Shape) != 2 {
		return nil, fmt.Errorf("npy: want a 2-d array, got shape %v", descr.Shape)
	}
	rows, cols := descr.Shape[0], descr.Shape[1]

	var size int
	switch descr.Type {
	case "<f4":
		size = 4
	case "<f8":
		size = 8
	default:
		return nil, fmt.Errorf("npy: unsupported dtype %q", descr.Type)
	}
	if rows < 0 || cols <= 0 || rows > len(data)/size/cols {
		return nil, fmt.Errorf("npy: shape (%d, %d) of %s does not fit in %d bytes", rows, cols, descr.Type, len(data))
	}

	out := make([][]float32, rows)
	switch size {
	case 4:
		flat := make([]float32, rows*cols)
		if err := r.Read(&flat); err != nil {
			return nil, fmt.Errorf("npy: read %dx%d %s data: %w", rows, cols, descr.Type, err)
		}
		for i := range out {
			out[i] = flat[i*cols : (i+1)*cols : (i+1)*cols]
		}
	case 8:
		flat := make([]float64, rows*cols)
		if err := r.Read(&flat); err != nil {
			return nil, fmt.Errorf("npy: read %dx%d %s data: %w", rows, cols, descr.Type, err)
		}
		for i := range out {
			row := make([]float32, cols)
			for j := range row {
				row[j] = float32(flat[i*cols+j])
			}
			out[i] = row
		}
	}
	return out, nil
}
