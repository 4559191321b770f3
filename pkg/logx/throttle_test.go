package logx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestThrottleLogsFirstThenEvery(t *testing.T) {
	th := &Throttle{Every: 3}
	n := 0
	for range 7 {
		th.Do("k", func() { n++ })
	}
	// calls 1, 4 and 7
	require.Equal(t, 3, n)
}

func TestThrottleForgetAndRetainBoundKeys(t *testing.T) {
	th := &Throttle{Every: 100}
	for _, k := range []string{"a", "b", "c"} {
		th.Do(k, func() {})
	}
	require.Equal(t, 3, th.Len())

	th.Forget("a")
	require.Equal(t, 2, th.Len())

	th.Retain(func(k string) bool { return k == "c" })
	require.Equal(t, 1, th.Len())

	n := 0
	th.Do("b", func() { n++ })
	require.Equal(t, 1, n, "dropped keys log again")
}

func TestNilThrottleAlwaysRuns(t *testing.T) {
	var th *Throttle
	n := 0
	th.Do("k", func() { n++ })
	th.Do("k", func() { n++ })
	th.Forget("k")
	th.Retain(func(string) bool { return false })
	require.Equal(t, 2, n)
	require.Zero(t, th.Len())
}
