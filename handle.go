package mmal

// Ownership records whether a wrapper releases its native resource.
type Ownership uint8

const (
	// Borrowed views never release anything; the resource belongs to
	// another wrapper (a Port belongs to its Component).
	Borrowed Ownership = iota
	// Owned wrappers release their resource in Close.
	Owned
)

func (o Ownership) String() string {
	switch o {
	case Owned:
		return "owned"
	default:
		return "borrowed"
	}
}

// Native pointer types handed out by an Engine. The zero value is the null
// pointer.
type (
	ComponentPtr  uintptr
	PortPtr       uintptr
	PoolPtr       uintptr
	ConnectionPtr uintptr
	BufferPtr     uintptr
)

// Handle wraps one non-null native pointer together with its ownership tag.
// The handle itself never releases the resource.
type Handle[T ~uintptr] struct {
	raw T
	own Ownership
}

// NewHandle wraps raw. It fails with ErrInvalidHandle when raw is null, in
// which case nothing is considered owned.
func NewHandle[T ~uintptr](raw T, own Ownership) (Handle[T], error) {
	if raw == 0 {
		return Handle[T]{}, ErrInvalidHandle
	}
	return Handle[T]{raw: raw, own: own}, nil
}

// Raw returns the wrapped pointer for engine calls this package does not
// translate.
func (h Handle[T]) Raw() T { return h.raw }

// Ownership reports the release contract of the wrapper holding h.
func (h Handle[T]) Ownership() Ownership { return h.own }

// Owned returns true if the wrapper holding h must release it.
func (h Handle[T]) Owned() bool { return h.own == Owned }

// Valid returns true if h wraps a pointer.
func (h Handle[T]) Valid() bool { return h.raw != 0 }
