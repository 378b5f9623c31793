package world

import (
	"context"
	"time"
)

// Run owns the engine loop. Every channel served here mutates or reads
// world state, so serving them from one goroutine is the concurrency
// control: a tick never starts while an action is mid-flight and vice
// versa.
func (w *Engine) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			w.handleJoin(req)
		case req := <-w.leave:
			w.handleLeave(req)
		case env := <-w.inbox:
			w.applyAction(env)
		case id := <-w.heartbeat:
			w.handleHeartbeat(id)
		case q := <-w.queryReq:
			w.handleQuery(q)
		case r := <-w.replayReq:
			w.handleReplay(r)
		case <-ticker.C:
			w.step()
		}
	}
}

func (w *Engine) Stop() { close(w.stop) }

// step advances the world by one tick: engine-initiated effects first, then
// ticked systems, then the taps.
func (w *Engine) step() {
	start := time.Now()
	nowTick := w.tick.Load()

	w.expireIdle(nowTick)
	w.systemMovement(nowTick)
	w.systemDecay(nowTick)
	w.systemWeather(nowTick)
	w.refreshStateCache()

	if w.tickLogger != nil {
		_ = w.tickLogger.WriteTick(TickLogEntry{
			Tick:   nowTick,
			Agents: len(w.agents),
			Events: w.published,
		})
	}
	if w.archive != nil && len(w.published) > 0 {
		w.archive.ArchiveEvents(w.published)
	}
	if w.snapshotSink != nil && nowTick != 0 && w.cfg.SnapshotEveryTicks > 0 &&
		nowTick%uint64(w.cfg.SnapshotEveryTicks) == 0 {
		select {
		case w.snapshotSink <- w.ExportSnapshot(nowTick):
		default:
			// Drop the snapshot if the sink is backed up.
		}
	}

	prev := w.Metrics()
	w.metrics.Store(Metrics{
		Tick:          nowTick + 1,
		Agents:        len(w.agents),
		Regions:       len(w.regions),
		EventsTotal:   prev.EventsTotal + uint64(len(w.published)),
		DroppedEvents: w.droppedEvents.Load(),
		StepMS:        float64(time.Since(start).Microseconds()) / 1000.0,
		InboxDepth:    len(w.inbox),
	})

	w.published = nil
	w.tick.Add(1)
}

// StepOnce advances exactly one tick. For tests.
func (w *Engine) StepOnce() { w.step() }
