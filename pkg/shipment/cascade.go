package shipment

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// Failure is one product whose cascade step failed
type Failure struct {
	ProductID string `json:"productId"`
	Error     string `json:"error"`

	err error
}

// CascadeReport collects the per-product results of the side effects of a
// transition. Failed steps never undo the status change.
type CascadeReport struct {
	Attempted int       `json:"attempted"`
	Succeeded int       `json:"succeeded"`
	Skipped   int       `json:"skipped"`
	Failures  []Failure `json:"failures,omitempty"`
}

func (r *CascadeReport) succeed() {
	r.Attempted++
	r.Succeeded++
}

func (r *CascadeReport) skip() {
	r.Attempted++
	r.Skipped++
}

func (r *CascadeReport) fail(productID string, err error) {
	r.Attempted++
	r.Failures = append(r.Failures, Failure{ProductID: productID, Error: err.Error(), err: err})
}

// Err combines every failure, or returns nil
func (r CascadeReport) Err() error {
	var err error
	for _, f := range r.Failures {
		cause := f.err
		if cause == nil {
			cause = errors.New(f.Error)
		}
		err = multierr.Append(err, fmt.Errorf("product %s: %w", f.ProductID, cause))
	}
	return err
}

// Summary renders "N of M product updates succeeded"
func (r CascadeReport) Summary() string {
	return fmt.Sprintf("%d of %d product updates succeeded", r.Succeeded, r.Attempted-r.Skipped)
}
