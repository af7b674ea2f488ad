package obt

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

//ReadMatrix reads the content of an npy file into a dense matrix.
func ReadMatrix(fileName string) (*mat.Dense, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", fileName)
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read npy header of %s", fileName)
	}

	denseMat := &mat.Dense{}
	if err := r.Read(denseMat); err != nil {
		return nil, errors.Wrapf(err, "read npy matrix from %s", fileName)
	}
	return denseMat, nil
}

//ReadVector reads a one-dimensional npy file of float64 into a slice.
func ReadVector(fileName string) ([]float64, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", fileName)
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read npy header of %s", fileName)
	}
	if len(r.Header.Descr.Shape) > 1 {
		return nil, errors.Errorf("%s: expected a vector, got shape %v",
			fileName, r.Header.Descr.Shape)
	}

	var values []float64
	if err := r.Read(&values); err != nil {
		return nil, errors.Wrapf(err, "read npy vector from %s", fileName)
	}
	return values, nil
}

//ReadLeafIndexes reads an observations x trees table of leaf ordinals from
//an npy file into an integer tensor. A one-dimensional file is treated as
//a single-tree column. Signed and unsigned 32- and 64-bit dumps are
//accepted, which covers what the vendor's leaf-assignment oracle writes.
func ReadLeafIndexes(fileName string) (*tensor.Dense, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", fileName)
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read npy header of %s", fileName)
	}

	shape := r.Header.Descr.Shape
	rows, cols := 0, 1
	switch len(shape) {
	case 1:
		rows = shape[0]
	case 2:
		rows, cols = shape[0], shape[1]
	default:
		return nil, errors.Errorf("%s: expected a leaf index table, got shape %v",
			fileName, shape)
	}

	backing := make([]int, rows*cols)
	switch r.Header.Descr.Type {
	case "<i4", ">i4":
		var raw []int32
		if err := r.Read(&raw); err != nil {
			return nil, errors.Wrapf(err, "read npy int32 data from %s", fileName)
		}
		for i, v := range raw {
			backing[i] = int(v)
		}
	case "<i8", ">i8":
		var raw []int64
		if err := r.Read(&raw); err != nil {
			return nil, errors.Wrapf(err, "read npy int64 data from %s", fileName)
		}
		for i, v := range raw {
			backing[i] = int(v)
		}
	case "<u4", ">u4":
		var raw []uint32
		if err := r.Read(&raw); err != nil {
			return nil, errors.Wrapf(err, "read npy uint32 data from %s", fileName)
		}
		for i, v := range raw {
			backing[i] = int(v)
		}
	case "<u8", ">u8":
		var raw []uint64
		if err := r.Read(&raw); err != nil {
			return nil, errors.Wrapf(err, "read npy uint64 data from %s", fileName)
		}
		for i, v := range raw {
			backing[i] = int(v)
		}
	default:
		return nil, errors.Errorf("%s: unsupported leaf index dtype %q",
			fileName, r.Header.Descr.Type)
	}

	return tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(backing)), nil
}
