package utils

// BLASBackend names the BLAS implementation behind gonum, switched by the netlib build tag.
var BLASBackend = "gonum"
