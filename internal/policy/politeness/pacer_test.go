package politeness

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSleep records every pause. When advance is set the fake clock
// moves forward by the paused duration, as a real sleep would.
type recordingSleep struct {
	mu      sync.Mutex
	delays  []time.Duration
	clock   time.Time
	advance bool
}

func newRecordingSleep(advance bool) *recordingSleep {
	return &recordingSleep{clock: time.Date(2025, 7, 10, 6, 0, 0, 0, time.UTC), advance: advance}
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	if r.advance {
		r.clock = r.clock.Add(d)
	}
	return nil
}

func (r *recordingSleep) now() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clock
}

func TestPacerDelaysConsecutiveRequestsToSameHost(t *testing.T) {
	t.Parallel()

	rec := newRecordingSleep(true)
	p, err := New(Config{DelayMin: time.Second, DelayMax: 3 * time.Second},
		WithSleep(rec.sleep),
		WithNow(rec.now),
		WithJitter(func(limit time.Duration) time.Duration { return limit / 2 }),
	)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.Wait(ctx, "https://www.broshura.bg/h/lidl"))
	require.NoError(t, p.Wait(ctx, "https://www.broshura.bg/b/123"))
	require.NoError(t, p.Wait(ctx, "https://cbabg.com/brochure"))
	require.NoError(t, p.Wait(ctx, "https://WWW.broshura.bg/b/124"))

	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, rec.delays)
}

func TestPacerDelayWithinBounds(t *testing.T) {
	t.Parallel()

	rec := newRecordingSleep(true)
	p, err := New(Config{DelayMin: 200 * time.Millisecond, DelayMax: 2500 * time.Millisecond},
		WithSleep(rec.sleep), WithNow(rec.now))
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		require.NoError(t, p.Wait(ctx, "https://katalozi-bg.info/catalogs/1/landscape/1.jpg"))
	}
	require.Len(t, rec.delays, 19)
	for _, d := range rec.delays {
		assert.GreaterOrEqual(t, d, 200*time.Millisecond)
		assert.LessOrEqual(t, d, 2500*time.Millisecond)
	}
}

func TestPacerSpacesConcurrentWaitsOnSameHost(t *testing.T) {
	t.Parallel()

	rec := newRecordingSleep(false)
	p, err := New(Config{DelayMin: 300 * time.Millisecond, DelayMax: 300 * time.Millisecond},
		WithSleep(rec.sleep), WithNow(rec.now))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.Wait(ctx, "https://katalozi-bg.info/catalogs/1/landscape/1.jpg"))

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.Wait(ctx, "https://katalozi-bg.info/catalogs/2/landscape/1.jpg"))
		}()
	}
	wg.Wait()

	slices.Sort(rec.delays)
	assert.Equal(t, []time.Duration{300 * time.Millisecond, 600 * time.Millisecond, 900 * time.Millisecond}, rec.delays)
}

func TestPacerReleasesConcurrentWaitsApart(t *testing.T) {
	t.Parallel()

	const delay = 60 * time.Millisecond
	p, err := New(Config{DelayMin: delay, DelayMax: delay})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.Wait(ctx, "https://www.broshura.bg/h/lidl"))

	var (
		mu       sync.Mutex
		released []time.Time
		wg       sync.WaitGroup
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.Wait(ctx, "https://www.broshura.bg/b/123"))
			mu.Lock()
			released = append(released, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, released, 2)
	gap := released[1].Sub(released[0])
	if gap < 0 {
		gap = -gap
	}
	assert.GreaterOrEqual(t, gap, delay-10*time.Millisecond)
}

func TestPacerRateLimit(t *testing.T) {
	t.Parallel()

	p, err := New(Config{RPS: 20})
	require.NoError(t, err)

	ctx := context.Background()
	start := time.Now()
	require.NoError(t, p.Wait(ctx, "https://example.com/a"))
	require.NoError(t, p.Wait(ctx, "https://example.com/b"))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestPacerCanceledContext(t *testing.T) {
	t.Parallel()

	p, err := New(Config{DelayMin: time.Hour, DelayMax: time.Hour})
	require.NoError(t, err)

	require.NoError(t, p.Wait(context.Background(), "https://example.com/a"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, p.Wait(ctx, "https://example.com/b"), context.Canceled)
}

func TestNewRejectsInvertedBounds(t *testing.T) {
	t.Parallel()

	_, err := New(Config{DelayMin: 2 * time.Second, DelayMax: time.Second})
	require.Error(t, err)
}
