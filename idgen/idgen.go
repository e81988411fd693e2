// Package idgen hands out identifiers for traced accesses and ARC
// exchanges.
package idgen

import (
	"log"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
)

var (
	generatorMutex        sync.Mutex
	generatorInstantiated bool
	generator             Generator
)

// Generator produces unique IDs.
type Generator interface {
	Generate() string
}

// UseSequential makes the process-wide generator count up from 1. This is
// the default.
func UseSequential() {
	set(&sequentialGenerator{})
}

// UseParallel makes the process-wide generator use globally unique xids.
// IDs are no longer deterministic.
func UseParallel() {
	set(parallelGenerator{})
}

func set(g Generator) {
	generatorMutex.Lock()
	defer generatorMutex.Unlock()

	if generatorInstantiated {
		log.Panic("cannot change id generator type after using it")
	}

	generator = g
	generatorInstantiated = true
}

// Get returns the process-wide generator.
func Get() Generator {
	generatorMutex.Lock()
	defer generatorMutex.Unlock()

	if !generatorInstantiated {
		generator = &sequentialGenerator{}
		generatorInstantiated = true
	}

	return generator
}

// NewSequential returns an independent sequential generator.
func NewSequential() Generator {
	return &sequentialGenerator{}
}

type sequentialGenerator struct {
	next uint64
}

func (g *sequentialGenerator) Generate() string {
	return strconv.FormatUint(atomic.AddUint64(&g.next, 1), 10)
}

type parallelGenerator struct{}

func (parallelGenerator) Generate() string {
	return xid.New().String()
}
