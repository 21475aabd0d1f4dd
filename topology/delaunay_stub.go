//go:build !triangle

package topology

import "fmt"

func NewDelaunayTriMesh(n int) (*Mesh, error) {
	if _, err := delaunayPoints(n); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("Delaunay mesh with %d divisions requires building with -tags triangle", n)
}
