package classifier

import (
	"errors"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"

	"mlvisuals/internal/linmem"
	"mlvisuals/internal/model"
)

type Options struct {
	InitialPages int
	MaxPages     int
	MaxInstances int
}

func (o Options) withDefaults() Options {
	if o.InitialPages <= 0 {
		o.InitialPages = 1
	}
	if o.MaxPages <= 0 {
		o.MaxPages = 256
	}
	if o.MaxInstances <= 0 {
		o.MaxInstances = 64
	}
	return o
}

// LeastSquares fits w minimising |Xw - y| over the expanded features. All
// instances share one linear memory.
type LeastSquares struct {
	mu        sync.Mutex
	mem       *linmem.Memory
	opts      Options
	instances map[Instance]*lsInstance
	next      Instance
}

type lsInstance struct {
	kind    model.FeatureKind
	weights uint32
	trained bool
	out     uint32
	outLen  int
}

func NewLeastSquares(opts Options) *LeastSquares {
	opts = opts.withDefaults()
	return &LeastSquares{
		mem:       linmem.New(opts.InitialPages, opts.MaxPages),
		opts:      opts,
		instances: make(map[Instance]*lsInstance),
	}
}

func (ls *LeastSquares) Buffer() []byte {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.mem.Bytes()
}

// Memory exposes the backing linear memory for inspection.
func (ls *LeastSquares) Memory() *linmem.Memory {
	return ls.mem
}

func (ls *LeastSquares) Live() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.instances)
}

func (ls *LeastSquares) Create() (Instance, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if len(ls.instances) >= ls.opts.MaxInstances {
		return 0, fmt.Errorf("%w: %d instances live", ErrResourceExhausted, len(ls.instances))
	}
	kind := model.FeatureLinear
	ptr, err := ls.mem.Alloc(kind.Dim() * 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrResourceExhausted, err)
	}
	ls.next++
	ls.instances[ls.next] = &lsInstance{kind: kind, weights: ptr}
	return ls.next, nil
}

func (ls *LeastSquares) Release(inst Instance) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	state, err := ls.lookup(inst)
	if err != nil {
		return err
	}
	if err := ls.mem.Free(state.weights); err != nil {
		return err
	}
	if state.out != 0 {
		if err := ls.mem.Free(state.out); err != nil {
			return err
		}
	}
	delete(ls.instances, inst)
	return nil
}

func (ls *LeastSquares) SetFeatures(inst Instance, kind model.FeatureKind) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	state, err := ls.lookup(inst)
	if err != nil {
		return err
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: feature kind %d", model.ErrInvalidParameter, int(kind))
	}
	if kind == state.kind {
		return nil
	}
	ptr, err := ls.mem.Alloc(kind.Dim() * 8)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResourceExhausted, err)
	}
	if err := ls.mem.Free(state.weights); err != nil {
		return err
	}
	state.kind = kind
	state.weights = ptr
	state.trained = false
	return nil
}

func (ls *LeastSquares) Train(inst Instance, sample model.Sample) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	state, err := ls.lookup(inst)
	if err != nil {
		return err
	}
	if err := sample.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrTrainingError, err)
	}

	n, d := sample.Len(), state.kind.Dim()
	x := mat.NewDense(n, d, nil)
	for i, p := range sample.Points {
		x.SetRow(i, state.kind.Expand(p))
	}
	y := mat.NewVecDense(n, append([]float64(nil), sample.Labels...))

	var w mat.VecDense
	if err := w.SolveVec(x, y); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return fmt.Errorf("%w: %v", ErrTrainingError, err)
		}
	}
	weights := make([]float64, d)
	for i := range weights {
		weights[i] = w.AtVec(i)
	}
	ls.mem.PutFloat64s(state.weights, weights)
	state.trained = true
	return nil
}

func (ls *LeastSquares) Predict(inst Instance, points []model.Point) (Region, error) {
	return ls.apply(inst, points, func(v float64) float64 {
		if v > 0 {
			return 1
		}
		return -1
	})
}

func (ls *LeastSquares) Evaluate(inst Instance, points []model.Point) (Region, error) {
	return ls.apply(inst, points, func(v float64) float64 { return v })
}

func (ls *LeastSquares) Weights(inst Instance) (Region, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	state, err := ls.lookup(inst)
	if err != nil {
		return Region{}, err
	}
	if !state.trained {
		return Region{}, ErrNotTrained
	}
	return Region{Ptr: state.weights, Len: state.kind.Dim()}, nil
}

// apply writes f(w . phi(p)) for every point into a fresh output region. The
// previous output region of the instance is freed first, so earlier results
// are invalid after this call.
func (ls *LeastSquares) apply(inst Instance, points []model.Point, f func(float64) float64) (Region, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	state, err := ls.lookup(inst)
	if err != nil {
		return Region{}, err
	}
	if !state.trained {
		return Region{}, ErrNotTrained
	}
	weights := ls.mem.Float64s(state.weights, state.kind.Dim())

	if state.out != 0 {
		if err := ls.mem.Free(state.out); err != nil {
			return Region{}, err
		}
		state.out, state.outLen = 0, 0
	}
	ptr, err := ls.mem.Alloc(len(points) * 8)
	if err != nil {
		return Region{}, fmt.Errorf("%w: %v", ErrResourceExhausted, err)
	}
	state.out, state.outLen = ptr, len(points)

	values := make([]float64, len(points))
	for i, p := range points {
		phi := state.kind.Expand(p)
		sum := 0.0
		for j, w := range weights {
			sum += w * phi[j]
		}
		values[i] = f(sum)
	}
	ls.mem.PutFloat64s(ptr, values)
	return Region{Ptr: ptr, Len: len(points)}, nil
}

func (ls *LeastSquares) lookup(inst Instance) (*lsInstance, error) {
	state, ok := ls.instances[inst]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownInstance, inst)
	}
	return state, nil
}
