package types

import "strings"

type BCFLAG uint8

const (
	BC_None BCFLAG = iota
	BC_Dirichlet
	BC_Neuman
)

var BCNameMap = map[string]BCFLAG{
	"none":      BC_None,
	"dirichlet": BC_Dirichlet,
	"wall":      BC_Dirichlet,
	"neuman":    BC_Neuman,
	"neumann":   BC_Neuman,
	"natural":   BC_Neuman,
}

func (bc BCFLAG) String() string {
	return [...]string{"None", "Dirichlet", "Neuman"}[bc]
}

// NewBCFLAG maps a case-insensitive BC name onto its flag; unknown names map to BC_None.
func NewBCFLAG(name string) (bc BCFLAG, ok bool) {
	bc, ok = BCNameMap[strings.ToLower(strings.TrimSpace(name))]
	return
}
