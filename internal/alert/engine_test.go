package alert

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"firestige.xyz/otus/internal/core"
	"firestige.xyz/otus/internal/eventbus"
)

func TestEvaluateFiresNotifyOnceOverThreshold(t *testing.T) {
	bus := eventbus.NewInMemoryEventBus(1, 4)
	defer bus.Close()

	var notified []int
	require.NoError(t, bus.Subscribe(eventbus.NotificationTopic, func(e *eventbus.Event) error {
		n := e.Payload.(eventbus.Notification)
		notified = append(notified, n.PID)
		return nil
	}))

	engine := New(bus)
	engine.SetAlert(core.Alert{
		PID:            42,
		ThresholdBytes: 1000,
		Action:         core.AlertAction{Kind: core.AlertActionNotify},
		Cooldown:       30 * time.Second,
	})

	ps := &core.ProcessStats{Identity: core.ProcessIdentity{PID: 42}, BytesSent: 1100}

	now := time.Now()
	require.True(t, engine.Evaluate(context.Background(), ps, now))
	require.Eventually(t, func() bool { return len(notified) == 1 }, time.Second, time.Millisecond)

	// within cooldown: should not fire again
	require.False(t, engine.Evaluate(context.Background(), ps, now.Add(time.Second)))
}

func TestEvaluateRespectsCooldownWindow(t *testing.T) {
	bus := eventbus.NewInMemoryEventBus(1, 4)
	defer bus.Close()
	require.NoError(t, bus.Subscribe(eventbus.NotificationTopic, func(e *eventbus.Event) error { return nil }))

	engine := New(bus)
	engine.SetAlert(core.Alert{
		PID:            1,
		ThresholdBytes: 100,
		Action:         core.AlertAction{Kind: core.AlertActionNotify},
		Cooldown:       10 * time.Second,
	})

	ps := &core.ProcessStats{Identity: core.ProcessIdentity{PID: 1}, BytesSent: 200}
	now := time.Now()

	require.True(t, engine.Evaluate(context.Background(), ps, now))
	require.False(t, engine.Evaluate(context.Background(), ps, now.Add(5*time.Second)))
	require.True(t, engine.Evaluate(context.Background(), ps, now.Add(11*time.Second)))
}

func TestEvaluateBelowThresholdDoesNotFire(t *testing.T) {
	bus := eventbus.NewInMemoryEventBus(1, 4)
	defer bus.Close()

	engine := New(bus)
	engine.SetAlert(core.Alert{PID: 2, ThresholdBytes: 1_000_000, Action: core.AlertAction{Kind: core.AlertActionNotify}})

	ps := &core.ProcessStats{Identity: core.ProcessIdentity{PID: 2}, BytesSent: 10}
	require.False(t, engine.Evaluate(context.Background(), ps, time.Now()))
}

func TestRunCustomCommandAppendsExecutionLog(t *testing.T) {
	bus := eventbus.NewInMemoryEventBus(1, 4)
	defer bus.Close()

	engine := New(bus)
	alert := core.Alert{
		PID:            3,
		ThresholdBytes: 0,
		Action:         core.AlertAction{Kind: core.AlertActionCustomCommand, Template: "echo pid={pid} name={name} bytes={bytes}"},
		Cooldown:       time.Second,
	}
	engine.SetAlert(alert)

	ps := &core.ProcessStats{Identity: core.ProcessIdentity{PID: 3, Name: "curl"}, BytesSent: 10}
	require.True(t, engine.Evaluate(context.Background(), ps, time.Now()))

	require.Eventually(t, func() bool { return len(engine.ExecutionLog()) == 1 }, time.Second, time.Millisecond)
	record := engine.ExecutionLog()[0]
	require.Equal(t, 3, record.PID)
	require.NoError(t, record.Err)
	require.Equal(t, 0, record.ExitCode)
}

func TestSubstitutePlaceholders(t *testing.T) {
	out := substitutePlaceholders("kill -9 {pid} # {name} used {bytes}", 7, "curl", 2048)
	require.Equal(t, "kill -9 7 # curl used 2048", out)
}

func TestTruncateRespectsMaxLength(t *testing.T) {
	require.Equal(t, "ab", truncate("abcdef", 2))
	require.Equal(t, "abcdef", truncate("abcdef", 100))
}
