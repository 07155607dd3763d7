package report

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Project2D maps each row of x onto its first two principal components.
// Two-column input is returned unchanged, and one-column input gets a zero
// second coordinate.
func Project2D(x *mat.Dense) (*mat.Dense, error) {
	r, c := x.Dims()
	if r == 0 || c == 0 {
		return nil, fmt.Errorf("%w: empty matrix", ErrShape)
	}
	out := mat.NewDense(r, 2, nil)
	switch {
	case c == 1:
		for i := 0; i < r; i++ {
			out.Set(i, 0, x.At(i, 0))
		}
		return out, nil
	case c == 2:
		out.Copy(x)
		return out, nil
	}

	if r < 2 {
		return nil, fmt.Errorf("%w: need two rows for principal components", ErrShape)
	}
	var pc stat.PC
	if ok := pc.PrincipalComponents(x, nil); !ok {
		return nil, fmt.Errorf("%w: principal components did not converge", ErrShape)
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	centered := mat.DenseCopyOf(x)
	for j := 0; j < c; j++ {
		col := mat.Col(nil, j, x)
		mean := stat.Mean(col, nil)
		for i := 0; i < r; i++ {
			centered.Set(i, j, col[i]-mean)
		}
	}
	out.Mul(centered, vecs.Slice(0, c, 0, 2))
	return out, nil
}
