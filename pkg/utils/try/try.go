package try

// Fataler stops the program (or the test) with the given reason.
//
// *testing.T and *log.Logger (of both the standard library and gommon) are Fatalers.
type Fataler interface {
	Fatal(...any)
}

// Either holds a result of a function returning (T, error).
type Either[T any] interface {
	// Get returns (value, nil) when it is ok. Otherwise, (zero-value, error).
	Get() (T, error)

	// OrFatal returns the value when it is ok.
	//
	// Otherwise, ftl.Fatal(err) is called.
	// When ftl has "Helper()" method (like *testing.T), it is called beforehand.
	OrFatal(ftl Fataler) T

	// OrDefault returns the value when it is ok. Otherwise, d.
	OrDefault(d T) T
}

// To wraps result of a function call.
//
//	conf := try.To(service.LoadConfig(path)).OrFatal(logger)
func To[T any](ok T, ng error) Either[T] {
	if ng == nil {
		return success[T]{ok}
	}
	return failure[T]{ng}
}

// Map converts the value when e is ok.
func Map[T any, R any](e Either[T], mapper func(T) R) Either[R] {
	val, err := e.Get()
	if err != nil {
		return failure[R]{err}
	}
	return success[R]{mapper(val)}
}

type success[T any] struct {
	value T
}

func (s success[T]) Get() (T, error) {
	return s.value, nil
}

func (s success[T]) OrFatal(Fataler) T {
	return s.value
}

func (s success[T]) OrDefault(T) T {
	return s.value
}

type failure[T any] struct {
	err error
}

func (f failure[T]) Get() (T, error) {
	return *new(T), f.err
}

func (f failure[T]) OrFatal(ftl Fataler) T {
	if hlp, ok := ftl.(interface{ Helper() }); ok {
		hlp.Helper()
	}
	ftl.Fatal(f.err)
	return *new(T)
}

func (f failure[T]) OrDefault(d T) T {
	return d
}
