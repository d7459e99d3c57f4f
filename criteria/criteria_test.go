package criteria

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type UserAccount struct{}

type ledgerEntry struct{}

func (ledgerEntry) CollectionName() string { return "ledger" }

func TestCollectionFor(t *testing.T) {
	assert.Equal(t, "user_accounts", CollectionFor(UserAccount{}).Name)
	assert.Equal(t, "user_accounts", CollectionFor(&UserAccount{}).Name)
	assert.Equal(t, "ledger", CollectionFor(ledgerEntry{}).Name)
	assert.Nil(t, CollectionFor(nil))
	assert.Nil(t, CollectionFor(map[string]any{}))
}

func TestCriteriaBuilder(t *testing.T) {
	c := New(NewCollection("users")).
		Where(Eq("name", "ann"), Gt("age", 30)).
		Where(Or(Eq("a", 1), Not(Eq("b", 2)))).
		OrderBy("name", Asc).
		OrderBy("age", Desc).
		Take(10, 20).
		Select("name", "age")

	assert.Equal(t, "users", c.CollectionName())
	assert.Len(t, c.Expressions, 3)
	assert.Equal(t, []Order{{"name", Asc}, {"age", Desc}}, c.Orders)
	assert.Equal(t, &Limit{Length: 10, Offset: 20}, c.Limit)
	assert.Equal(t, []string{"name", "age"}, c.Fields)
	assert.Empty(t, c.Distinct)

	assert.Equal(t, Junction{OpOr, []Expression{
		Comparison{"a", OpEq, 1},
		Negation{Comparison{"b", OpEq, 2}},
	}}, c.Expressions[2])

	c.DistinctOn("age")
	assert.Equal(t, "age", c.Distinct)
}

func TestCollectionNameNil(t *testing.T) {
	var c *Criteria
	assert.Empty(t, c.CollectionName())
	assert.Empty(t, New(nil).CollectionName())
}

func TestDirectionString(t *testing.T) {
	assert.Equal(t, "asc", Asc.String())
	assert.Equal(t, "desc", Desc.String())
}

func TestParseAggregate(t *testing.T) {
	a, err := ParseAggregate("AVG:price")
	require.NoError(t, err)
	assert.Equal(t, Avg("price"), a)
	assert.Equal(t, "avg:price", a.String())

	a, err = ParseAggregate("sum:stats.views")
	require.NoError(t, err)
	assert.Equal(t, Sum("stats.views"), a)

	for _, s := range []string{"", "sum", "sum:", "median:price"} {
		_, err := ParseAggregate(s)
		assert.Error(t, err, s)
	}
}
