package events

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatFraming(t *testing.T) {
	frame, err := Format(Progress("Splitting", 1, 2))
	require.NoError(t, err)

	s := string(frame)
	require.True(t, strings.HasPrefix(s, "data: "), s)
	require.True(t, strings.HasSuffix(s, "\n\n"), s)
	assert.Equal(t, 2, strings.Count(s, "\n"), "exactly one frame")

	var obj map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSuffix(strings.TrimPrefix(s, "data: "), "\n\n")), &obj))
	assert.Equal(t, "progress", obj["type"])
	assert.Equal(t, "Splitting", obj["message"])
	assert.EqualValues(t, 1, obj["current"])
	assert.EqualValues(t, 2, obj["total"])
}

func TestFormatEscapesNewlines(t *testing.T) {
	frame, err := Format(Generating("line one\nline two"))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(frame), "\n"))
	assert.Contains(t, string(frame), `line one\nline two`)
}

func TestProgressOmitsZeroTotal(t *testing.T) {
	ev := Progress("Parsing", 0, 0)
	_, ok := ev.Payload["total"]
	assert.False(t, ok)
}

func TestTimingMarshalsMilliseconds(t *testing.T) {
	b, err := json.Marshal(CompleteTree(map[string]any{"id": "root"}, Timing{"structure": 1500 * time.Millisecond}))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"timing":{"structure":1500}`)
	assert.Contains(t, string(b), `"type":"complete"`)
}

func TestEmitterRefusesAfterTerminal(t *testing.T) {
	var got []Type
	em := NewEmitter(func(ev Event) error {
		got = append(got, ev.Type)
		return nil
	})

	require.NoError(t, em.Start("go", "req-1"))
	require.NoError(t, em.Error(errors.New("boom")))
	assert.True(t, em.Closed())

	assert.ErrorIs(t, em.Progress("late", 0, 0), ErrClosed)
	assert.ErrorIs(t, em.Complete(nil, nil), ErrClosed)
	assert.Equal(t, []Type{TypeStart, TypeError}, got)
}

func TestEmitterClosesOnSinkError(t *testing.T) {
	sinkErr := errors.New("client gone")
	calls := 0
	em := NewEmitter(func(Event) error {
		calls++
		return sinkErr
	})

	assert.ErrorIs(t, em.Start("go", "req-1"), sinkErr)
	assert.ErrorIs(t, em.Progress("next", 0, 0), ErrClosed)
	assert.Equal(t, 1, calls)
}

func TestEmitterConcurrentSingleTerminal(t *testing.T) {
	var mu sync.Mutex
	terminals := 0
	em := NewEmitter(func(ev Event) error {
		if ev.Type.Terminal() {
			mu.Lock()
			terminals++
			mu.Unlock()
		}
		return nil
	})

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				_ = em.Complete(nil, nil)
			} else {
				_ = em.Update(map[string]any{})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, terminals)
}
