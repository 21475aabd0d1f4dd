// Package section implements an indexed list over a contiguous chart of points.
//
// A Section maps each point p in [pStart, pEnd) to a run [Offset(p), Offset(p)+Dof(p))
// of a flat backing array. It is built in two passes: counts are set or accumulated
// with SetDof/AddDof, then SetUp computes the offsets and fixes the storage size.
package section

import (
	"errors"
	"fmt"
)

var (
	ErrNotSetUp   = errors.New("section not set up")
	ErrOutOfChart = errors.New("point outside section chart")
	ErrNegative   = errors.New("negative dof count")
	ErrFrozen     = errors.New("section already set up")
)

type Section struct {
	pStart, pEnd int
	dof          []int
	off          []int
	storage      int
	setup        bool
}

// New creates a section over the chart [pStart, pEnd) with all counts zero.
func New(pStart, pEnd int) (s *Section) {
	if pEnd < pStart {
		pEnd = pStart
	}
	s = &Section{
		pStart: pStart,
		pEnd:   pEnd,
		dof:    make([]int, pEnd-pStart),
	}
	return
}

func (s *Section) Chart() (pStart, pEnd int) { return s.pStart, s.pEnd }

// Has reports whether p lies within the chart.
func (s *Section) Has(p int) bool { return p >= s.pStart && p < s.pEnd }

func (s *Section) check(p int) (err error) {
	if !s.Has(p) {
		err = fmt.Errorf("%w: point %d not in [%d, %d)", ErrOutOfChart, p, s.pStart, s.pEnd)
	}
	return
}

func (s *Section) SetDof(p, n int) (err error) {
	if s.setup {
		return ErrFrozen
	}
	if err = s.check(p); err != nil {
		return
	}
	if n < 0 {
		return fmt.Errorf("%w: point %d count %d", ErrNegative, p, n)
	}
	s.dof[p-s.pStart] = n
	return
}

func (s *Section) AddDof(p, n int) (err error) {
	if s.setup {
		return ErrFrozen
	}
	if err = s.check(p); err != nil {
		return
	}
	if s.dof[p-s.pStart]+n < 0 {
		return fmt.Errorf("%w: point %d count %d", ErrNegative, p, s.dof[p-s.pStart]+n)
	}
	s.dof[p-s.pStart] += n
	return
}

// SetUp computes offsets as an exclusive prefix sum of the counts.
// It is idempotent.
func (s *Section) SetUp() {
	if s.setup {
		return
	}
	var (
		np  = s.pEnd - s.pStart
		sum int
	)
	s.off = make([]int, np+1)
	for i := 0; i < np; i++ {
		s.off[i] = sum
		sum += s.dof[i]
	}
	s.off[np] = sum
	s.storage = sum
	s.setup = true
}

func (s *Section) IsSetUp() bool { return s.setup }

func (s *Section) Dof(p int) (n int, err error) {
	if err = s.check(p); err != nil {
		return
	}
	n = s.dof[p-s.pStart]
	return
}

func (s *Section) Offset(p int) (off int, err error) {
	if !s.setup {
		return 0, ErrNotSetUp
	}
	if err = s.check(p); err != nil {
		return
	}
	off = s.off[p-s.pStart]
	return
}

// Range returns the offset and count of p together.
func (s *Section) Range(p int) (off, n int, err error) {
	if off, err = s.Offset(p); err != nil {
		return
	}
	n = s.dof[p-s.pStart]
	return
}

// StorageSize is the sum of all counts. Only valid after SetUp.
func (s *Section) StorageSize() (n int, err error) {
	if !s.setup {
		return 0, ErrNotSetUp
	}
	return s.storage, nil
}

// MaxDof is the largest count over the chart.
func (s *Section) MaxDof() (n int) {
	for _, d := range s.dof {
		if d > n {
			n = d
		}
	}
	return
}

func (s *Section) String() string {
	return fmt.Sprintf("Section chart [%d, %d) storage %d", s.pStart, s.pEnd, s.storage)
}
