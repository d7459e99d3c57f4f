// Package core provides a data source over MongoDB. Callers describe what
// they want with the criteria package; a Source compiles the criteria into
// filters and map/reduce programs, runs them and hands back plain documents.
package core

import (
	"context"

	"github.com/dosco/mongosource/core/internal/dialect"
	"github.com/dosco/mongosource/criteria"
	"github.com/dosco/mongosource/mongodriver"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Store is the driver surface a Source runs on. *mongodriver.Conn
// implements it.
type Store interface {
	Find(ctx context.Context, coll string, filter any, fo mongodriver.FindOptions) ([]bson.M, error)
	Count(ctx context.Context, coll string, filter any) (int64, error)
	Distinct(ctx context.Context, coll, field string, filter any) ([]any, error)
	Insert(ctx context.Context, coll string, doc any) (any, error)
	Update(ctx context.Context, coll string, filter, update any) (int64, error)
	Delete(ctx context.Context, coll string, filter any) (int64, error)
	RunCommand(ctx context.Context, cmd bson.D) (bson.M, error)
	FetchRef(ctx context.Context, ref mongodriver.Ref) (bson.M, error)
}

// Document is a decoded store document.
type Document = map[string]any

// Source runs criteria against a store. It is safe for concurrent use once
// built; SetLogger must not race with running operations.
type Source struct {
	store    Store
	qb       *dialect.QueryBuilder
	log      *zap.SugaredLogger
	trace    Tracer
	programs programCache
	cacheLen int
}

// Option configures a Source.
type Option func(*Source) error

const defaultProgramCacheSize = 256

// New returns a Source running on store.
func New(store Store, options ...Option) (*Source, error) {
	if store == nil {
		return nil, errors.New("core: store is required")
	}

	s := &Source{
		store:    store,
		qb:       dialect.NewQueryBuilder(normalize),
		trace:    newOtelTracer(otel.GetTracerProvider()),
		cacheLen: defaultProgramCacheSize,
	}

	for _, op := range options {
		if err := op(s); err != nil {
			return nil, err
		}
	}

	if err := s.initProgramCache(); err != nil {
		return nil, err
	}
	return s, nil
}

// Open connects to the store described by opts and returns a Source on
// it. Any failure to reach the store is a *ConnectionError.
func Open(ctx context.Context, opts mongodriver.ConnectOptions, options ...Option) (*Source, error) {
	conn, err := mongodriver.Connect(ctx, opts)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}

	s, err := New(conn, options...)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}
	return s, nil
}

// OptionSetLogger attaches a diagnostic logger.
func OptionSetLogger(log *zap.SugaredLogger) Option {
	return func(s *Source) error {
		s.log = log
		return nil
	}
}

// OptionSetTrace sets the tracer wrapping every operation.
func OptionSetTrace(trace Tracer) Option {
	return func(s *Source) error {
		s.trace = trace
		return nil
	}
}

// OptionSetTracerProvider traces operations with an OpenTelemetry provider.
func OptionSetTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Source) error {
		s.trace = newOtelTracer(tp)
		return nil
	}
}

// OptionSetProgramCacheSize sets how many compiled aggregate programs are
// kept.
func OptionSetProgramCacheSize(n int) Option {
	return func(s *Source) error {
		if n <= 0 {
			return errors.Errorf("core: invalid program cache size %d", n)
		}
		s.cacheLen = n
		return nil
	}
}

// SetLogger attaches a diagnostic logger. A nil logger disables logging.
func (s *Source) SetLogger(log *zap.SugaredLogger) {
	s.log = log
}

// Collection returns a collection handle.
func (s *Source) Collection(name string) *criteria.Collection {
	return criteria.NewCollection(name)
}

// Criteria returns an empty criteria over collection.
func (s *Source) Criteria(collection *criteria.Collection) *criteria.Criteria {
	return criteria.New(collection)
}

// Close releases the store when it holds a connection.
func (s *Source) Close(ctx context.Context) error {
	if c, ok := s.store.(interface{ Close(context.Context) error }); ok {
		return c.Close(ctx)
	}
	return nil
}

// normalize prepares a filter value for the store.
func normalize(v any) any {
	return mongodriver.Escape(mongodriver.Deprivatize(v))
}
