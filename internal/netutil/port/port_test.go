package port

import (
	"context"
	"errors"
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

var errTestKill = errors.New("operation not permitted")

// fakeProber reports the configured ports as taken and counts probes.
type fakeProber struct {
	// busy holds the taken ports.
	busy map[uint16]bool
	// probes counts InUse calls.
	probes int
}

// InUse reports whether port is in the busy set.
func (f *fakeProber) InUse(_ context.Context, port uint16) bool {
	f.probes++

	return f.busy[port]
}

// sequence returns a random source yielding values in order, then repeating the last one.
func sequence(values ...int) func(int) int {
	i := 0

	return func(int) int {
		v := values[min(i, len(values)-1)]
		i++

		return v
	}
}

// listen occupies a loopback port for the duration of the test.
func listen(t *testing.T) uint16 {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = l.Close()
	})

	tcpAddr, ok := l.Addr().(*net.TCPAddr)
	require.True(t, ok)

	return uint16(tcpAddr.Port) //nolint:gosec // Ports fit uint16.
}

// TestTCPProber_InUse detects a listening socket and a closed one.
func TestTCPProber_InUse(t *testing.T) {
	t.Parallel()

	busy := listen(t)

	prober := TCPProber{Host: "127.0.0.1"}
	require.True(t, prober.InUse(context.Background(), busy))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	tcpAddr, ok := l.Addr().(*net.TCPAddr)
	require.True(t, ok)
	require.NoError(t, l.Close())

	require.False(t, prober.InUse(context.Background(), uint16(tcpAddr.Port))) //nolint:gosec // Ports fit uint16.
}

// TestSelect_ExplicitPortIsReturnedAsIs never probes an explicit port.
func TestSelect_ExplicitPortIsReturnedAsIs(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{busy: map[uint16]bool{8500: true}}
	selector := NewSelector(prober)

	got, err := selector.Select(context.Background(), 8500)
	require.NoError(t, err)
	require.Equal(t, uint16(8500), got)
	require.Zero(t, prober.probes)
}

// TestSelect_SkipsTakenCandidates returns the first free random candidate.
func TestSelect_SkipsTakenCandidates(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{busy: map[uint16]bool{8000: true, 8001: true}}
	selector := NewSelector(prober, WithRandom(sequence(0, 1, 2)))

	got, err := selector.Select(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, uint16(8002), got)
	require.False(t, prober.busy[got])
	require.Equal(t, 3, prober.probes)
}

// TestSelect_StaysInRange checks the bounds of automatic picks.
func TestSelect_StaysInRange(t *testing.T) {
	t.Parallel()

	selector := NewSelector(&fakeProber{}, WithRandom(sequence(MaxAutoPort-MinAutoPort-1)))

	got, err := selector.Select(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, uint16(MaxAutoPort-1), got)

	for range 200 {
		got, err = NewSelector(&fakeProber{}).Select(context.Background(), 0)
		require.NoError(t, err)
		require.GreaterOrEqual(t, got, uint16(MinAutoPort))
		require.Less(t, got, uint16(MaxAutoPort))
	}
}

// TestSelect_GivesUpAfterMaxAttempts fails with ErrNoPortAvailable.
func TestSelect_GivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{busy: map[uint16]bool{8000: true}}
	selector := NewSelector(prober, WithMaxAttempts(7), WithRandom(sequence(0)))

	_, err := selector.Select(context.Background(), 0)
	require.ErrorIs(t, err, ErrNoPortAvailable)
	require.Equal(t, 7, prober.probes)
}

// TestSelect_NeverReturnsOccupiedPort runs with the real prober against a bound port.
func TestSelect_NeverReturnsOccupiedPort(t *testing.T) {
	t.Parallel()

	prober := TCPProber{Host: "127.0.0.1"}

	got, err := NewSelector(prober).Select(context.Background(), 0)
	require.NoError(t, err)
	require.False(t, prober.InUse(context.Background(), got))
}

// TestParseLsofPIDs reads lsof -t output.
func TestParseLsofPIDs(t *testing.T) {
	t.Parallel()

	require.Equal(t, []int{4242, 77}, parseLsofPIDs("4242\n77\n4242\n\n"))
	require.Empty(t, parseLsofPIDs(""))
}

// TestParseNetstatPIDs picks LISTENING rows for the requested port only.
func TestParseNetstatPIDs(t *testing.T) {
	t.Parallel()

	output := `
Active Connections

  Proto  Local Address          Foreign Address        State           PID
  TCP    0.0.0.0:135            0.0.0.0:0              LISTENING       1000
  TCP    0.0.0.0:8123           0.0.0.0:0              LISTENING       4242
  TCP    [::]:8123              [::]:0                 LISTENING       4242
  TCP    127.0.0.1:8123         127.0.0.1:50000        ESTABLISHED     4242
  TCP    127.0.0.1:18123        0.0.0.0:0              LISTENING       5151
  TCP    127.0.0.1:50000        127.0.0.1:8123         ESTABLISHED     9999
`

	require.Equal(t, []int{4242}, parseNetstatPIDs(output, 8123))
	require.Empty(t, parseNetstatPIDs(output, 25565))
}

// TestReclaim_KillsOwnersButNotSelf uses a fake lookup and kill.
func TestReclaim_KillsOwnersButNotSelf(t *testing.T) {
	t.Parallel()

	parent := os.Getppid()

	var killed []int

	r := NewReclaimer(
		WithOwnerLookup(func(context.Context, uint16) ([]int, error) {
			return []int{os.Getpid(), parent}, nil
		}),
		WithKill(func(pid int) error {
			killed = append(killed, pid)
			return nil
		}),
	)

	require.NoError(t, r.Reclaim(context.Background(), 8123))
	require.Equal(t, []int{parent}, killed)
}

// TestReclaim_JoinsKillErrors reports failures after trying every owner.
func TestReclaim_JoinsKillErrors(t *testing.T) {
	t.Parallel()

	r := NewReclaimer(
		WithOwnerLookup(func(context.Context, uint16) ([]int, error) {
			return []int{os.Getppid()}, nil
		}),
		WithKill(func(int) error {
			return errTestKill
		}),
	)

	err := r.Reclaim(context.Background(), 8123)
	require.ErrorIs(t, err, errTestKill)
}
