package core

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Params is the fixed configuration snapshot of a run.
//
// It is identical for every tick of every stream in a run and is serialized into
// each TickRecord, so two logs produced with different params can never share a
// digest.
type Params struct {
	// Tau is the acceptance threshold: a tick is accepted iff D < Tau.
	Tau float64 `json:"tau" yaml:"tau" env:"TAU" validate:"gte=0"`

	// Q is the reweighting period of the complexity tracker, in ticks.
	Q int `json:"q" yaml:"q" env:"Q" validate:"gt=0"`

	// Alpha is the exponential smoothing factor of the complexity tracker.
	Alpha float64 `json:"alpha" yaml:"alpha" env:"ALPHA" validate:"gte=0,lte=1"`

	// Window is the number of past ticks averaged into the divergence reference.
	Window int `json:"window" yaml:"window" env:"WINDOW" validate:"gt=0"`

	// Scale is the box size used by downstream walk consumers.
	Scale float64 `json:"scale" yaml:"scale" env:"SCALE" validate:"gt=0"`
}

// DefaultParams returns the parameter set of the reference run.
func DefaultParams() Params {
	return Params{
		Tau:    0.25,
		Q:      4,
		Alpha:  0.1,
		Window: 32,
		Scale:  100,
	}
}

// StepSize returns the structural constant h used by the tracker's energy
// function. It depends only on Window, so it is constant across a run.
func (p Params) StepSize() float64 {
	return 1.0 / float64(p.Window)
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func paramsValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Validate checks that the params are within their documented domains.
//
// All violations are reported together. The returned error always matches
// ErrInvalidParams with errors.Is.
func (p Params) Validate() error {
	var errs []error
	if err := paramsValidator().Struct(p); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return fmt.Errorf("%w: %w", ErrInvalidParams, err)
		}
		for _, fe := range ve {
			errs = append(errs, fmt.Errorf("%s must satisfy %s (got %v)", fe.Field(), constraint(fe), fe.Value()))
		}
	}
	for name, v := range map[string]float64{"tau": p.Tau, "alpha": p.Alpha, "scale": p.Scale} {
		if math.IsInf(v, 0) {
			errs = append(errs, fmt.Errorf("%s must be finite", name))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	// Map iteration above is unordered; sort messages so the error text is stable.
	sortErrors(errs)
	return fmt.Errorf("%w: %w", ErrInvalidParams, errors.Join(errs...))
}

func constraint(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

func sortErrors(errs []error) {
	sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
}
