package observer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCondition struct {
	isPub  bool
	unit   int
	period int
}

func (c testCondition) Less(o testCondition) bool { return c.period < o.period }

func (c testCondition) Matches(o testCondition) bool {
	if c.isPub && !o.isPub {
		return c.unit == o.unit
	}
	if !c.isPub && o.isPub {
		return c.unit == o.unit && c.period != 0 && o.period%c.period == 0
	}
	return false
}

type recordingObserver struct {
	got []int
}

func (r *recordingObserver) Update(_ testCondition, data int) {
	r.got = append(r.got, data)
}

func TestOrderedListInsertSorted(t *testing.T) {
	l := NewOrderedList[int, testCondition]()
	l.Insert(3, testCondition{period: 30})
	l.Insert(1, testCondition{period: 10})
	l.Insert(2, testCondition{period: 20})

	var got []int
	l.Each(func(v int, _ testCondition) { got = append(got, v) })
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestConditionallyObservedNotifyMatches(t *testing.T) {
	reg := NewConditionallyObserved[int, testCondition]()
	sub5 := &recordingObserver{}
	sub3 := &recordingObserver{}

	reg.Attach(sub5, testCondition{isPub: false, unit: 1, period: 5})
	reg.Attach(sub3, testCondition{isPub: false, unit: 1, period: 3})

	notified := reg.Notify(testCondition{isPub: true, unit: 1, period: 15}, 42)
	assert.True(t, notified)
	assert.Equal(t, []int{42}, sub5.got)
	assert.Equal(t, []int{42}, sub3.got)

	sub5.got, sub3.got = nil, nil
	notified = reg.Notify(testCondition{isPub: true, unit: 1, period: 10}, 7)
	assert.True(t, notified)
	assert.Equal(t, []int{7}, sub5.got)
	assert.Nil(t, sub3.got, "period 3 does not divide 10")
}

func TestConditionallyObservedNoMatch(t *testing.T) {
	reg := NewConditionallyObserved[int, testCondition]()
	reg.Attach(&recordingObserver{}, testCondition{isPub: false, unit: 2, period: 5})

	notified := reg.Notify(testCondition{isPub: true, unit: 9, period: 5}, 1)
	assert.False(t, notified)
}

func TestConditionallyObservedDetach(t *testing.T) {
	reg := NewConditionallyObserved[int, testCondition]()
	sub := &recordingObserver{}
	cond := testCondition{isPub: false, unit: 1, period: 5}
	reg.Attach(sub, cond)
	require.Equal(t, 1, reg.Len())

	ok := reg.Detach(sub, cond)
	assert.True(t, ok)
	assert.Equal(t, 0, reg.Len())
}

func TestConcurrentObserverBlocksUntilUpdate(t *testing.T) {
	obs := NewConcurrentObserver[int, testCondition](4)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		time.Sleep(10 * time.Millisecond)
		obs.Update(testCondition{}, 99)
	}()

	got, err := obs.Updated(ctx)
	require.NoError(t, err)
	assert.Equal(t, 99, got)
}

func TestConcurrentObserverContextCancel(t *testing.T) {
	obs := NewConcurrentObserver[int, testCondition](1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := obs.Updated(ctx)
	assert.Error(t, err)
}
