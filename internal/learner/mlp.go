package learner

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// ErrNonFinite is returned when a forward or backward pass produces NaN or Inf.
var ErrNonFinite = errors.New("non-finite value in network")

// MLP is a dense ReLU network with a linear output layer, trained with Adam
// on squared error at the taken action.
type MLP struct {
	sizes   []int
	weights []*mat.Dense // layer l is sizes[l+1] x sizes[l]
	biases  [][]float64
	opt     *adam
}

// NewMLP creates a network with layer widths sizes (input first, action
// count last) and He-initialized weights.
func NewMLP(sizes []int, learningRate float64, rng *rand.Rand) (*MLP, error) {
	if len(sizes) < 2 {
		return nil, fmt.Errorf("mlp needs at least input and output sizes, got %v", sizes)
	}
	for _, n := range sizes {
		if n < 1 {
			return nil, fmt.Errorf("invalid layer width in %v", sizes)
		}
	}
	m := &MLP{sizes: append([]int(nil), sizes...)}
	for l := 0; l < len(sizes)-1; l++ {
		in, out := sizes[l], sizes[l+1]
		std := math.Sqrt(2 / float64(in))
		data := make([]float64, out*in)
		for i := range data {
			data[i] = rng.NormFloat64() * std
		}
		m.weights = append(m.weights, mat.NewDense(out, in, data))
		m.biases = append(m.biases, make([]float64, out))
	}
	m.opt = newAdam(learningRate, m.params())
	return m, nil
}

// Actions returns the width of the output layer.
func (m *MLP) Actions() int { return m.sizes[len(m.sizes)-1] }

// Updates returns how many optimizer steps have been applied.
func (m *MLP) Updates() int { return m.opt.t }

// Predict returns the estimated value of every action in state.
func (m *MLP) Predict(state []float64) ([]float64, error) {
	if len(state) != m.sizes[0] {
		return nil, fmt.Errorf("state has %d components, network expects %d", len(state), m.sizes[0])
	}
	x := mat.NewDense(1, len(state), append([]float64(nil), state...))
	acts := m.forward(x)
	out := append([]float64(nil), acts[len(acts)-1].RawRowView(0)...)
	for _, q := range out {
		if !finite(q) {
			return nil, ErrNonFinite
		}
	}
	return out, nil
}

// Train runs one Adam step over batch and returns the mean squared error
// before the step. On error the parameters are untouched.
func (m *MLP) Train(batch []Target) (float64, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	n := len(batch)
	actions := m.Actions()

	x := mat.NewDense(n, m.sizes[0], nil)
	for i, t := range batch {
		if len(t.State) != m.sizes[0] {
			return 0, fmt.Errorf("sample %d: state has %d components, network expects %d", i, len(t.State), m.sizes[0])
		}
		if t.Action < 0 || t.Action >= actions {
			return 0, fmt.Errorf("sample %d: action %d outside [0, %d)", i, t.Action, actions)
		}
		x.SetRow(i, t.State)
	}

	acts := m.forward(x)
	out := acts[len(acts)-1]

	delta := mat.NewDense(n, actions, nil)
	loss := 0.0
	for i, t := range batch {
		d := out.At(i, t.Action) - t.Value
		loss += d * d
		delta.Set(i, t.Action, 2*d/float64(n))
	}
	loss /= float64(n)
	if !finite(loss) {
		return loss, ErrNonFinite
	}

	layers := len(m.weights)
	gw := make([][]float64, layers)
	gb := make([][]float64, layers)
	for l := layers - 1; l >= 0; l-- {
		var dw mat.Dense
		dw.Mul(delta.T(), acts[l])
		gw[l] = dw.RawMatrix().Data
		gb[l] = columnSums(delta)

		if l == 0 {
			break
		}
		var prev mat.Dense
		prev.Mul(delta, m.weights[l])
		rows, _ := prev.Dims()
		for i := 0; i < rows; i++ {
			row := prev.RawRowView(i)
			act := acts[l].RawRowView(i)
			for j := range row {
				if act[j] <= 0 {
					row[j] = 0
				}
			}
		}
		delta = &prev
	}

	grads := make([][]float64, 0, 2*layers)
	for l := 0; l < layers; l++ {
		grads = append(grads, gw[l], gb[l])
	}
	for _, g := range grads {
		for _, v := range g {
			if !finite(v) {
				return loss, ErrNonFinite
			}
		}
	}

	m.opt.step(m.params(), grads)
	return loss, nil
}

// forward returns the activations of every layer, input first. Hidden
// activations are post-ReLU.
func (m *MLP) forward(x *mat.Dense) []*mat.Dense {
	acts := []*mat.Dense{x}
	for l, w := range m.weights {
		var z mat.Dense
		z.Mul(acts[l], w.T())
		rows, _ := z.Dims()
		last := l == len(m.weights)-1
		for i := 0; i < rows; i++ {
			row := z.RawRowView(i)
			for j := range row {
				row[j] += m.biases[l][j]
				if !last && row[j] < 0 {
					row[j] = 0
				}
			}
		}
		acts = append(acts, &z)
	}
	return acts
}

// params returns the live parameter storage in optimizer order.
func (m *MLP) params() [][]float64 {
	out := make([][]float64, 0, 2*len(m.weights))
	for l, w := range m.weights {
		out = append(out, w.RawMatrix().Data, m.biases[l])
	}
	return out
}

type mlpParams struct {
	Sizes   []int       `json:"sizes"`
	Weights [][]float64 `json:"weights"`
	Biases  [][]float64 `json:"biases"`
}

// Snapshot serializes the parameters.
func (m *MLP) Snapshot() ([]byte, error) {
	p := mlpParams{Sizes: m.sizes}
	for l, w := range m.weights {
		p.Weights = append(p.Weights, append([]float64(nil), w.RawMatrix().Data...))
		p.Biases = append(p.Biases, append([]float64(nil), m.biases[l]...))
	}
	return json.Marshal(p)
}

// Restore loads parameters written by Snapshot. The shape must match; on
// any mismatch nothing is changed. Optimizer moments are reset.
func (m *MLP) Restore(data []byte) error {
	var p mlpParams
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode parameters: %w", err)
	}
	if len(p.Sizes) != len(m.sizes) || len(p.Weights) != len(m.weights) || len(p.Biases) != len(m.biases) {
		return fmt.Errorf("shape %v does not match network %v", p.Sizes, m.sizes)
	}
	for i := range p.Sizes {
		if p.Sizes[i] != m.sizes[i] {
			return fmt.Errorf("shape %v does not match network %v", p.Sizes, m.sizes)
		}
	}
	for l, w := range m.weights {
		if len(p.Weights[l]) != len(w.RawMatrix().Data) || len(p.Biases[l]) != len(m.biases[l]) {
			return fmt.Errorf("layer %d parameter count mismatch", l)
		}
	}

	for l, w := range m.weights {
		copy(w.RawMatrix().Data, p.Weights[l])
		copy(m.biases[l], p.Biases[l])
	}
	m.opt = newAdam(m.opt.lr, m.params())
	return nil
}

func columnSums(d *mat.Dense) []float64 {
	rows, cols := d.Dims()
	out := make([]float64, cols)
	for i := 0; i < rows; i++ {
		for j, v := range d.RawRowView(i) {
			out[j] += v
		}
	}
	return out
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// adam holds first and second moment estimates for each parameter slice.
type adam struct {
	lr, beta1, beta2, eps float64
	t                     int
	m, v                  [][]float64
}

func newAdam(lr float64, params [][]float64) *adam {
	a := &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-8}
	for _, p := range params {
		a.m = append(a.m, make([]float64, len(p)))
		a.v = append(a.v, make([]float64, len(p)))
	}
	return a
}

func (a *adam) step(params, grads [][]float64) {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))
	for k, p := range params {
		g, m, v := grads[k], a.m[k], a.v[k]
		for i := range p {
			m[i] = a.beta1*m[i] + (1-a.beta1)*g[i]
			v[i] = a.beta2*v[i] + (1-a.beta2)*g[i]*g[i]
			p[i] -= a.lr * (m[i] / c1) / (math.Sqrt(v[i]/c2) + a.eps)
		}
	}
}
