// Package classifiertest provides a Model double that records every call.
package classifiertest

import (
	"sync"

	"mlvisuals/internal/classifier"
	"mlvisuals/internal/model"
)

type Call struct {
	Op       string
	Instance classifier.Instance
}

// Recorder forwards to Inner and logs each call. CreateErr and TrainErr, when
// set, are returned instead of calling Inner.
type Recorder struct {
	Inner     classifier.Model
	CreateErr error
	TrainErr  func(sample model.Sample) error

	mu    sync.Mutex
	calls []Call
}

func New() *Recorder {
	return &Recorder{Inner: classifier.NewLeastSquares(classifier.Options{})}
}

func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Count returns how many calls named op were made.
func (r *Recorder) Count(op string) int {
	n := 0
	for _, c := range r.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// CallsAfterRelease lists calls issued against an instance after it was
// released.
func (r *Recorder) CallsAfterRelease() []Call {
	released := make(map[classifier.Instance]bool)
	var out []Call
	for _, c := range r.Calls() {
		if released[c.Instance] {
			out = append(out, c)
		}
		if c.Op == "release" {
			released[c.Instance] = true
		}
	}
	return out
}

func (r *Recorder) record(op string, inst classifier.Instance) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Op: op, Instance: inst})
	r.mu.Unlock()
}

func (r *Recorder) Create() (classifier.Instance, error) {
	if r.CreateErr != nil {
		r.record("create", 0)
		return 0, r.CreateErr
	}
	inst, err := r.Inner.Create()
	r.record("create", inst)
	return inst, err
}

func (r *Recorder) Release(inst classifier.Instance) error {
	r.record("release", inst)
	return r.Inner.Release(inst)
}

func (r *Recorder) SetFeatures(inst classifier.Instance, kind model.FeatureKind) error {
	r.record("set_features", inst)
	return r.Inner.SetFeatures(inst, kind)
}

func (r *Recorder) Train(inst classifier.Instance, sample model.Sample) error {
	r.record("train", inst)
	if r.TrainErr != nil {
		if err := r.TrainErr(sample); err != nil {
			return err
		}
	}
	return r.Inner.Train(inst, sample)
}

func (r *Recorder) Predict(inst classifier.Instance, points []model.Point) (classifier.Region, error) {
	r.record("predict", inst)
	return r.Inner.Predict(inst, points)
}

func (r *Recorder) Evaluate(inst classifier.Instance, points []model.Point) (classifier.Region, error) {
	r.record("evaluate", inst)
	return r.Inner.Evaluate(inst, points)
}

func (r *Recorder) Weights(inst classifier.Instance) (classifier.Region, error) {
	r.record("weights", inst)
	return r.Inner.Weights(inst)
}

func (r *Recorder) Buffer() []byte {
	return r.Inner.Buffer()
}
