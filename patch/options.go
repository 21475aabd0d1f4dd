package patch

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/florianwechsung/ssc/ksp"
	"github.com/florianwechsung/ssc/utils"
)

// Option keys understood by SetFromOptions.
const (
	KeySaveOperators = "pc_patch_save_operators"
	KeySubMatType    = "pc_patch_sub_mat_type"
	KeySubKSPType    = "pc_patch_sub_ksp_type"
	KeyWorkers       = "pc_patch_workers"
	KeyStrict        = "pc_patch_strict"
)

// Options configures how patch operators are stored and solved.
type Options struct {
	// SaveOperators keeps every patch matrix for the lifetime of the setup. Otherwise
	// each matrix is rebuilt and dropped within every Apply.
	SaveOperators bool          `yaml:"SaveOperators"`
	SubMatType    utils.MatType `yaml:"SubMatType"`
	SubSolverType ksp.Type      `yaml:"SubSolverType"`
	// Workers is the number of goroutines sharing the patch solves, 0 means one per CPU
	Workers int `yaml:"Workers"`
	// StrictSolves turns a failed patch solve into an Apply error
	StrictSolves bool `yaml:"StrictSolves"`
	Verbose      bool `yaml:"Verbose"`
}

// DefaultOptions rebuilds the operators on every Apply and solves them with dense LU on one goroutine.
func DefaultOptions() Options {
	return Options{
		SubMatType:    utils.MatDense,
		SubSolverType: ksp.TypeLU,
		Workers:       1,
	}
}

// SetFromOptions overrides the fields whose keys are set in v.
func (o *Options) SetFromOptions(v *viper.Viper) (err error) {
	if v == nil {
		return
	}
	if v.IsSet(KeySaveOperators) {
		o.SaveOperators = v.GetBool(KeySaveOperators)
	}
	if v.IsSet(KeySubMatType) {
		if o.SubMatType, err = utils.NewMatType(v.GetString(KeySubMatType)); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrConfiguration, KeySubMatType, err)
		}
	}
	if v.IsSet(KeySubKSPType) {
		if o.SubSolverType, err = ksp.NewType(v.GetString(KeySubKSPType)); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrConfiguration, KeySubKSPType, err)
		}
	}
	if v.IsSet(KeyWorkers) {
		if o.Workers = v.GetInt(KeyWorkers); o.Workers < 0 {
			return fmt.Errorf("%w: %s must not be negative, have %d", ErrConfiguration, KeyWorkers, o.Workers)
		}
	}
	if v.IsSet(KeyStrict) {
		o.StrictSolves = v.GetBool(KeyStrict)
	}
	return
}

func (o Options) String() string {
	return fmt.Sprintf("save operators: %t, sub matrix: %s, sub solver: %s, workers: %d, strict: %t",
		o.SaveOperators, o.SubMatType, o.SubSolverType, o.Workers, o.StrictSolves)
}
