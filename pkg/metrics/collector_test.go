package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type fakeHandles int

func (f fakeHandles) Len() int { return int(f) }

type fakeEntries struct {
	n   int
	err error
}

func (f fakeEntries) CountEntries(ctx context.Context) (int, error) { return f.n, f.err }

func TestCollector_Collect(t *testing.T) {
	c := NewCollector(fakeHandles(4), fakeEntries{n: 12}, 0)
	c.collect()

	assert.Equal(t, 4.0, testutil.ToFloat64(TenantHandlesOpen))
	assert.Equal(t, 12.0, testutil.ToFloat64(IndexEntries))
}

func TestCollector_CountErrorKeepsLastValue(t *testing.T) {
	IndexEntries.Set(7)
	c := NewCollector(nil, fakeEntries{err: errors.New("store closed")}, 0)
	c.collect()

	assert.Equal(t, 7.0, testutil.ToFloat64(IndexEntries))
}
