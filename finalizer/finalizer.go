package finalizer

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Finalizer collects resources and closes them in reverse order.
type Finalizer struct {
	lk        sync.Mutex
	resources []io.Closer
}

// NewFinalizer returns a new Finalizer.
func NewFinalizer() *Finalizer {
	return &Finalizer{}
}

// Add adds closers to the finalizer.
func (f *Finalizer) Add(cs ...io.Closer) {
	f.lk.Lock()
	defer f.lk.Unlock()
	f.resources = append(f.resources, cs...)
}

// AddFn adds a function to the finalizer.
func (f *Finalizer) AddFn(fn func()) {
	f.Add(fnCloser(fn))
}

// Cleanup closes every resource, last added first, and returns err joined
// with any close error.
func (f *Finalizer) Cleanup(err error) error {
	f.lk.Lock()
	resources := f.resources
	f.resources = nil
	f.lk.Unlock()

	var errs []string
	if err != nil {
		errs = append(errs, err.Error())
	}
	for i := len(resources) - 1; i >= 0; i-- {
		if cerr := resources[i].Close(); cerr != nil {
			errs = append(errs, cerr.Error())
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s", strings.Join(errs, "; "))
}

// Cleanupf is Cleanup with err formatted by format.
func (f *Finalizer) Cleanupf(format string, err error) error {
	if err != nil {
		err = fmt.Errorf(format, err)
	}
	return f.Cleanup(err)
}

type fnCloser func()

func (fn fnCloser) Close() error {
	fn()
	return nil
}
