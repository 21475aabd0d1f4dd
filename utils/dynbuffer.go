package utils

// DynBuffer is an append-only buffer grown geometrically by Growth when its capacity is
// exceeded. Cells returns a view of the populated part, Trim drops any spare capacity.
type DynBuffer[T any] struct {
	cells  []T
	Growth float64
}

const DefaultGrowth = 2.

func NewDynBuffer[T any](capacityGuess int) *DynBuffer[T] {
	return NewDynBufferGrowth[T](capacityGuess, DefaultGrowth)
}

func NewDynBufferGrowth[T any](capacityGuess int, growth float64) *DynBuffer[T] {
	if capacityGuess < 0 {
		capacityGuess = 0
	}
	if growth <= 1. {
		growth = DefaultGrowth
	}
	return &DynBuffer[T]{
		cells:  make([]T, 0, capacityGuess),
		Growth: growth,
	}
}

func (db *DynBuffer[T]) reserve(extra int) {
	var (
		need = len(db.cells) + extra
	)
	if need <= cap(db.cells) {
		return
	}
	newCap := int(float64(1+cap(db.cells)) * db.Growth)
	if newCap < need {
		newCap = need
	}
	bigger := make([]T, len(db.cells), newCap)
	copy(bigger, db.cells)
	db.cells = bigger
}

func (db *DynBuffer[T]) Add(val T) {
	db.reserve(1)
	db.cells = append(db.cells, val)
}

func (db *DynBuffer[T]) AddSlice(vals []T) {
	db.reserve(len(vals))
	db.cells = append(db.cells, vals...)
}

func (db *DynBuffer[T]) Cells() []T { return db.cells }

func (db *DynBuffer[T]) Len() int { return len(db.cells) }

func (db *DynBuffer[T]) Cap() int { return cap(db.cells) }

// Reset empties the buffer and keeps the storage for reuse.
func (db *DynBuffer[T]) Reset() { db.cells = db.cells[:0] }

// Trim reallocates to the exact populated size and returns the result.
func (db *DynBuffer[T]) Trim() []T {
	if len(db.cells) != cap(db.cells) {
		exact := make([]T, len(db.cells))
		copy(exact, db.cells)
		db.cells = exact
	}
	return db.cells
}
