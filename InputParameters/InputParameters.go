package InputParameters

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/ghodss/yaml"

	"github.com/florianwechsung/ssc/ksp"
	"github.com/florianwechsung/ssc/partition"
	"github.com/florianwechsung/ssc/patch"
	"github.com/florianwechsung/ssc/types"
	"github.com/florianwechsung/ssc/utils"
)

// Parameters obtained from the YAML input file
type InputParameters struct {
	Title           string  `yaml:"Title"`
	PolynomialOrder int     `yaml:"PolynomialOrder"`
	BlockSize       int     `yaml:"BlockSize"`
	Reaction        float64 `yaml:"Reaction"`
	Source          float64 `yaml:"Source"` // constant right hand side
	GridSize        int     `yaml:"GridSize"`
	Delaunay        int     `yaml:"Delaunay"` // divisions per side of an unstructured square mesh
	Dimension       int     `yaml:"Dimension"`
	Ranks           int     `yaml:"Ranks"`
	Partitioner     string  `yaml:"Partitioner"`
	RTol            float64 `yaml:"RTol"`
	MaxIterations   int     `yaml:"MaxIterations"`
	// BCs maps marker names to BC types; without BCs the whole boundary is clamped
	BCs   map[string]string `yaml:"BCs"`
	Patch patch.Options     `yaml:"Patch"`
}

func New() *InputParameters {
	return &InputParameters{
		Title:           "Poisson",
		PolynomialOrder: 1,
		BlockSize:       1,
		Source:          1,
		GridSize:        8,
		Dimension:       2,
		Ranks:           1,
		Partitioner:     string(partition.StrategyBlock),
		RTol:            1.e-8,
		MaxIterations:   500,
		Patch:           patch.DefaultOptions(),
	}
}

// Parse reads data over the current values, so absent keys keep their defaults.
func (ip *InputParameters) Parse(data []byte) (err error) {
	if err = yaml.Unmarshal(data, ip); err != nil {
		return
	}
	return ip.Validate()
}

func (ip *InputParameters) Validate() (err error) {
	switch {
	case ip.PolynomialOrder != 1 && ip.PolynomialOrder != 2:
		return fmt.Errorf("PolynomialOrder must be 1 or 2, have %d", ip.PolynomialOrder)
	case ip.BlockSize < 1:
		return fmt.Errorf("BlockSize must be positive, have %d", ip.BlockSize)
	case ip.Dimension != 2 && ip.Dimension != 3:
		return fmt.Errorf("Dimension must be 2 or 3, have %d", ip.Dimension)
	case ip.Dimension == 3 && ip.PolynomialOrder != 1:
		return fmt.Errorf("only PolynomialOrder 1 is available on tetrahedra")
	case ip.Ranks < 1:
		return fmt.Errorf("Ranks must be positive, have %d", ip.Ranks)
	case ip.GridSize < 1:
		return fmt.Errorf("GridSize must be positive, have %d", ip.GridSize)
	case ip.Delaunay < 0:
		return fmt.Errorf("Delaunay must not be negative, have %d", ip.Delaunay)
	case ip.Delaunay > 0 && ip.Dimension != 2:
		return fmt.Errorf("Delaunay meshes are two dimensional, have Dimension %d", ip.Dimension)
	case ip.Reaction < 0:
		return fmt.Errorf("Reaction must not be negative, have %g", ip.Reaction)
	}
	if _, err = partition.NewStrategy(ip.Partitioner); err != nil {
		return
	}
	if ip.Patch.SubMatType, err = utils.NewMatType(string(ip.Patch.SubMatType)); err != nil {
		return
	}
	if ip.Patch.SubSolverType, err = ksp.NewType(string(ip.Patch.SubSolverType)); err != nil {
		return
	}
	if ip.Patch.Workers < 0 {
		return fmt.Errorf("Patch.Workers must not be negative, have %d", ip.Patch.Workers)
	}
	_, err = ip.DirichletMarkers()
	return
}

func (ip *InputParameters) ClampExterior() bool { return len(ip.BCs) == 0 }

// DirichletMarkers returns the sorted markers clamped to zero.
func (ip *InputParameters) DirichletMarkers() (markers []string, err error) {
	for _, name := range ip.markers() {
		bc, ok := types.NewBCFLAG(ip.BCs[name])
		if !ok {
			return nil, fmt.Errorf("unknown BC type %q on marker %s", ip.BCs[name], name)
		}
		if bc == types.BC_Dirichlet {
			markers = append(markers, name)
		}
	}
	return
}

func (ip *InputParameters) markers() (keys []string) {
	keys = make([]string, 0, len(ip.BCs))
	for k := range ip.BCs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return
}

func (ip *InputParameters) Print() { ip.Fprint(os.Stdout) }

func (ip *InputParameters) Fprint(w io.Writer) {
	fmt.Fprintf(w, "\"%s\"\t\t= Title\n", ip.Title)
	fmt.Fprintf(w, "[%d]\t\t\t= Polynomial Order\n", ip.PolynomialOrder)
	fmt.Fprintf(w, "[%d]\t\t\t= Block Size\n", ip.BlockSize)
	fmt.Fprintf(w, "%8.5f\t\t= Reaction\n", ip.Reaction)
	fmt.Fprintf(w, "%8.5f\t\t= Source\n", ip.Source)
	if ip.Delaunay > 0 {
		fmt.Fprintf(w, "[%d]\t\t\t= Delaunay divisions\n", ip.Delaunay)
	}
	fmt.Fprintf(w, "[%d]\t\t\t= Ranks (%s)\n", ip.Ranks, ip.Partitioner)
	fmt.Fprintf(w, "%8.2e\t\t= RTol\n", ip.RTol)
	fmt.Fprintf(w, "[%d]\t\t\t= Max Iterations\n", ip.MaxIterations)
	fmt.Fprintf(w, "[%s]\t= Patch\n", ip.Patch)
	for _, key := range ip.markers() {
		fmt.Fprintf(w, "BCs[%s] = %v\n", key, ip.BCs[key])
	}
}
