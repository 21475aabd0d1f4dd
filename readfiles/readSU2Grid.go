package readfiles

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/florianwechsung/ssc/topology"
)

// From here: https://su2code.github.io/docs_v7/Mesh-File/
type SU2ElementType uint8

const (
	ELType_LINE          SU2ElementType = 3
	ELType_Triangle      SU2ElementType = 5
	ELType_Quadrilateral SU2ElementType = 9
	ELType_Tetrahedral   SU2ElementType = 10
	ELType_Hexahedral    SU2ElementType = 12
	ELType_Prism         SU2ElementType = 13
	ELType_Pyramid       SU2ElementType = 14
)

// cellType and facetType give the element types accepted for each dimension
func cellType(dim int) (SU2ElementType, int) {
	if dim == 3 {
		return ELType_Tetrahedral, 4
	}
	return ELType_Triangle, 3
}

func facetType(dim int) (SU2ElementType, int) {
	if dim == 3 {
		return ELType_Triangle, 3
	}
	return ELType_LINE, 2
}

func readBCs(reader *bufio.Reader, dim int) (markers map[string][][]int, err error) {
	var (
		nBCs     int
		fType, n = facetType(dim)
	)
	if nBCs, err = readNumber(reader); err != nil {
		return
	}
	markers = make(map[string][][]int, nBCs)
	for b := 0; b < nBCs; b++ {
		var (
			label  string
			nElems int
		)
		if label, err = readLabel(reader); err != nil {
			return
		}
		if nElems, err = readNumber(reader); err != nil {
			return
		}
		// Duplicate tags are appended to a common facet list
		for i := 0; i < nElems; i++ {
			var (
				nType int
				verts []int
			)
			if nType, verts, err = readElement(reader, n); err != nil {
				return
			}
			if SU2ElementType(nType) != fType {
				return nil, fmt.Errorf("marker %q: element type %d is not a %dD facet", label, nType, dim)
			}
			markers[label] = append(markers[label], verts)
		}
	}
	return
}

func readVertices(reader *bufio.Reader, dim int) (coords [][]float64, err error) {
	var nv int
	if nv, err = readNumber(reader); err != nil {
		return
	}
	coords = make([][]float64, nv)
	for i := 0; i < nv; i++ {
		fields := strings.Fields(getLineNoComments(reader))
		if len(fields) < dim {
			return nil, fmt.Errorf("unable to read coordinates of point %d from %v", i, fields)
		}
		coords[i] = make([]float64, dim)
		for d := 0; d < dim; d++ {
			if coords[i][d], err = strconv.ParseFloat(fields[d], 64); err != nil {
				return nil, fmt.Errorf("point %d: %w", i, err)
			}
		}
	}
	return
}

func readElements(reader *bufio.Reader, dim int) (EToV [][]int, err error) {
	var (
		K        int
		cType, n = cellType(dim)
	)
	if K, err = readNumber(reader); err != nil {
		return
	}
	EToV = make([][]int, K)
	for k := 0; k < K; k++ {
		var nType int
		if nType, EToV[k], err = readElement(reader, n); err != nil {
			return
		}
		if SU2ElementType(nType) != cType {
			return nil, fmt.Errorf("element %d has type %d, only type %d is supported in %dD",
				k, nType, cType, dim)
		}
	}
	return
}

// readElement parses "type v1 ... vn [index]"
func readElement(reader *bufio.Reader, n int) (nType int, verts []int, err error) {
	fields := strings.Fields(getLineNoComments(reader))
	if len(fields) < n+1 {
		return 0, nil, fmt.Errorf("unable to read %d vertices from [%s]", n, strings.Join(fields, " "))
	}
	if nType, err = strconv.Atoi(fields[0]); err != nil {
		return
	}
	verts = make([]int, n)
	for i := range verts {
		if verts[i], err = strconv.Atoi(fields[i+1]); err != nil {
			return
		}
	}
	return
}

func getToken(reader *bufio.Reader) (token string, err error) {
	line := getLineNoComments(reader)
	ind := strings.Index(line, "=")
	if ind < 0 {
		return "", fmt.Errorf("badly formed input line [%s], should have an =", line)
	}
	token = strings.TrimSpace(line[ind+1:])
	return
}

func readLabel(reader *bufio.Reader) (label string, err error) {
	var token string
	if token, err = getToken(reader); err != nil {
		return
	}
	if _, err = fmt.Sscanf(token, "%s", &label); err != nil {
		return "", fmt.Errorf("unable to read label from token: [%s]", token)
	}
	return
}

func readNumber(reader *bufio.Reader) (num int, err error) {
	var token string
	if token, err = getToken(reader); err != nil {
		return
	}
	if _, err = fmt.Sscanf(token, "%d", &num); err != nil {
		return 0, fmt.Errorf("unable to read number from token: [%s]", token)
	}
	return
}

func getLineNoComments(reader *bufio.Reader) (line string) {
	for {
		line = strings.TrimSpace(getLine(reader))
		if !strings.HasPrefix(line, "%") {
			return
		}
	}
}

func getLine(reader *bufio.Reader) (line string) {
	line, _ = reader.ReadString('\n')
	return strings.TrimRight(line, "\r\n")
}

// DecodeSU2 reads a triangle or tetrahedral mesh with its boundary markers.
func DecodeSU2(r io.Reader) (m *topology.Mesh, err error) {
	var (
		reader = bufio.NewReader(r)
		dim    int
	)
	if dim, err = readNumber(reader); err != nil {
		return
	}
	if dim != 2 && dim != 3 {
		return nil, fmt.Errorf("NDIME= %d, only 2 and 3 are supported", dim)
	}
	m = &topology.Mesh{Dim: dim}
	if m.EToV, err = readElements(reader, dim); err != nil {
		return nil, err
	}
	if m.Coords, err = readVertices(reader, dim); err != nil {
		return nil, err
	}
	if m.Markers, err = readBCs(reader, dim); err != nil {
		return nil, err
	}
	return
}

func ReadSU2(filename string, verbose bool) (m *topology.Mesh, err error) {
	var file *os.File
	if verbose {
		fmt.Printf("Reading SU2 file named: %s\n", filename)
	}
	if file, err = os.Open(filename); err != nil {
		return nil, fmt.Errorf("unable to open file %s: %w", filename, err)
	}
	defer file.Close()
	if m, err = DecodeSU2(file); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	if verbose {
		fmt.Printf("Read %dD mesh with %d elements, %d points and %d markers\n",
			m.Dim, m.NumCells(), m.NumVertices(), len(m.Markers))
	}
	return
}

// WriteSU2 writes the mesh in the same layout DecodeSU2 reads.
func WriteSU2(w io.Writer, m *topology.Mesh) (err error) {
	var (
		bw       = bufio.NewWriter(w)
		cType, _ = cellType(m.Dim)
		fType, _ = facetType(m.Dim)
		ints     = func(vals []int) string {
			s := make([]string, len(vals))
			for i, v := range vals {
				s[i] = strconv.Itoa(v)
			}
			return strings.Join(s, " ")
		}
	)
	fmt.Fprintf(bw, "NDIME= %d\n", m.Dim)
	fmt.Fprintf(bw, "NELEM= %d\n", m.NumCells())
	for k, verts := range m.EToV {
		fmt.Fprintf(bw, "%d %s %d\n", cType, ints(verts), k)
	}
	fmt.Fprintf(bw, "NPOIN= %d\n", m.NumVertices())
	for i, x := range m.Coords {
		s := make([]string, len(x))
		for d, v := range x {
			s[d] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		fmt.Fprintf(bw, "%s %d\n", strings.Join(s, " "), i)
	}
	names := m.MarkerNames()
	fmt.Fprintf(bw, "NMARK= %d\n", len(names))
	for _, name := range names {
		fmt.Fprintf(bw, "MARKER_TAG= %s\n", name)
		fmt.Fprintf(bw, "MARKER_ELEMS= %d\n", len(m.Markers[name]))
		for _, fv := range m.Markers[name] {
			fmt.Fprintf(bw, "%d %s\n", fType, ints(fv))
		}
	}
	return bw.Flush()
}
