package core

import (
	"github.com/dosco/mongosource/core/internal/dialect"
	"github.com/dosco/mongosource/criteria"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mitchellh/hashstructure/v2"
	"github.com/pkg/errors"
)

// programCache keeps compiled aggregate programs by aggregate fingerprint.
type programCache struct {
	cache *lru.TwoQueueCache[uint64, dialect.MapReduce]
}

func (s *Source) initProgramCache() (err error) {
	s.programs.cache, err = lru.New2Q[uint64, dialect.MapReduce](s.cacheLen)
	return
}

// program returns the compiled map/reduce pair for a.
func (s *Source) program(a criteria.Aggregate) (dialect.MapReduce, error) {
	key, err := hashstructure.Hash(a, hashstructure.FormatV2, nil)
	if err != nil {
		return dialect.MapReduce{}, errors.Wrap(err, "core: aggregate fingerprint")
	}

	if mr, ok := s.programs.cache.Get(key); ok {
		return mr, nil
	}

	mr, err := dialect.CompileAggregate(a)
	if err != nil {
		return dialect.MapReduce{}, err
	}
	s.programs.cache.Add(key, mr)
	return mr, nil
}
