package report

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/samcharles93/makemore/internal/train"
)

const (
	chartSize   = 8 * vg.Inch
	heatColours = 64
)

// countGrid adapts a count table to plotter.GridXYZ. Row 0 is drawn at the
// top so the chart reads like the printed table.
type countGrid struct {
	m *mat.Dense
}

func (g countGrid) Dims() (c, r int) {
	r, c = g.m.Dims()
	return c, r
}

func (g countGrid) Z(c, r int) float64 {
	n, _ := g.m.Dims()
	return g.m.At(n-1-r, c)
}

func (g countGrid) X(c int) float64 { return float64(c) }
func (g countGrid) Y(r int) float64 { return float64(r) }

// Heatmap renders the count table with each cell labelled by its bigram and
// count.
func Heatmap(w io.Writer, s CountsSnapshot) error {
	n := len(s.Tokens)
	if n == 0 {
		return fmt.Errorf("%w: no tokens", ErrShape)
	}
	data := make([]float64, 0, n*n)
	for _, row := range s.Counts {
		data = append(data, row...)
	}
	m := mat.NewDense(n, n, data)

	p := plot.New()
	p.Title.Text = "bigram counts"
	p.HideAxes()
	p.Add(plotter.NewHeatMap(countGrid{m}, palette.Heat(heatColours, 1)))

	var labels plotter.XYLabels
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			labels.XYs = append(labels.XYs, plotter.XY{X: float64(j), Y: float64(n - 1 - i)})
			labels.Labels = append(labels.Labels, fmt.Sprintf("%s%s\n%.0f", s.Tokens[i], s.Tokens[j], m.At(i, j)))
		}
	}
	l, err := plotter.NewLabels(labels)
	if err != nil {
		return fmt.Errorf("heatmap labels: %w", err)
	}
	for i := range l.TextStyle {
		l.TextStyle[i].Font.Size = vg.Points(5)
		l.TextStyle[i].Color = color.Gray{Y: 40}
	}
	p.Add(l)
	return save(w, p)
}

// LossCurve plots log10 of the per-step loss and, when present, the moving
// average drawn at the centre of each window.
func LossCurve(w io.Writer, s LossSnapshot) error {
	if len(s.Losses) == 0 {
		return fmt.Errorf("%w: empty loss history", ErrShape)
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s training loss", s.Model)
	p.X.Label.Text = "step"
	p.Y.Label.Text = "log10 loss"

	pts := make(plotter.XYs, len(s.Losses))
	for i, v := range s.Losses {
		pts[i] = plotter.XY{X: float64(i), Y: math.Log10(v)}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("loss line: %w", err)
	}
	line.Color = color.RGBA{B: 200, A: 255}
	p.Add(line)
	p.Legend.Add("step", line)

	if len(s.MovingAverage) > 0 {
		avg := make(plotter.XYs, len(s.MovingAverage))
		for i, v := range s.MovingAverage {
			avg[i] = plotter.XY{X: float64(i*s.Window + s.Window/2), Y: math.Log10(v)}
		}
		al, err := plotter.NewLine(avg)
		if err != nil {
			return fmt.Errorf("moving average line: %w", err)
		}
		al.Color = color.RGBA{R: 220, A: 255}
		al.Width = vg.Points(2)
		p.Add(al)
		p.Legend.Add(fmt.Sprintf("mean of %d", s.Window), al)
	}
	return save(w, p)
}

// EmbeddingScatter plots the 2D projection of each token's embedding,
// labelled with the token.
func EmbeddingScatter(w io.Writer, s EmbeddingSnapshot) error {
	if len(s.Projection) == 0 {
		return fmt.Errorf("%w: no embeddings", ErrShape)
	}
	var labels plotter.XYLabels
	for i, pt := range s.Projection {
		labels.XYs = append(labels.XYs, plotter.XY{X: pt[0], Y: pt[1]})
		labels.Labels = append(labels.Labels, s.Tokens[i])
	}
	p := plot.New()
	p.Title.Text = "character embeddings"
	sc, err := plotter.NewScatter(labels.XYs)
	if err != nil {
		return fmt.Errorf("embedding scatter: %w", err)
	}
	sc.GlyphStyle.Radius = vg.Points(8)
	sc.GlyphStyle.Color = color.RGBA{R: 150, G: 180, B: 255, A: 255}
	p.Add(sc)
	l, err := plotter.NewLabels(labels)
	if err != nil {
		return fmt.Errorf("embedding labels: %w", err)
	}
	p.Add(l)
	p.Add(plotter.NewGrid())
	return save(w, p)
}

// SweepCurve plots loss against log10 of the learning rate.
func SweepCurve(w io.Writer, s SweepSnapshot) error {
	if len(s.Points) == 0 {
		return fmt.Errorf("%w: empty sweep", ErrShape)
	}
	pts := make(plotter.XYs, len(s.Points))
	for i, pt := range s.Points {
		pts[i] = plotter.XY{X: math.Log10(pt.Rate), Y: pt.Loss}
	}
	p := plot.New()
	p.Title.Text = "learning rate sweep"
	p.X.Label.Text = "log10 learning rate"
	p.Y.Label.Text = "loss"
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("sweep line: %w", err)
	}
	p.Add(line)
	return save(w, p)
}

func save(w io.Writer, p *plot.Plot) error {
	wt, err := p.WriterTo(chartSize, chartSize, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// BestRate returns the rate with the lowest loss in points.
func BestRate(points []train.RatePoint) (train.RatePoint, bool) {
	if len(points) == 0 {
		return train.RatePoint{}, false
	}
	best := points[0]
	for _, pt := range points[1:] {
		if pt.Loss < best.Loss {
			best = pt
		}
	}
	return best, true
}
