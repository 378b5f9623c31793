package world

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"sync/atomic"

	"agentworld.ai/internal/persistence/snapshot"
	"agentworld.ai/internal/protocol"
	"agentworld.ai/internal/sim/regions"
	"agentworld.ai/internal/sim/spatial"
	"agentworld.ai/internal/sim/tuning"

	"github.com/google/uuid"
)

type Config struct {
	Tuning tuning.Tuning
	World  regions.Config
	Seed   int64
}

// Engine is the authoritative world core. It owns every region, presence
// record and object, advances world time on a fixed tick and is the single
// serialization point for state mutation: all state is touched only from the
// loop goroutine, which drains the channel inboxes below.
type Engine struct {
	cfg tuning.Tuning
	def regions.Config

	tick atomic.Uint64

	regions map[string]*Region
	agents  map[string]*Agent

	gestures map[string]bool

	join      chan joinReq
	leave     chan leaveReq
	inbox     chan actionReq
	heartbeat chan string
	queryReq  chan queryReq
	replayReq chan replayReq
	stop      chan struct{}

	// Events published since the last tick boundary, for the taps.
	published []protocol.Event

	droppedEvents atomic.Uint64

	// Optional taps (may be nil). Implemented in internal/persistence/*.
	tickLogger   TickLogger
	archive      EventArchive
	snapshotSink chan<- snapshot.SnapshotV1

	metrics    atomic.Value // Metrics
	stateCache atomic.Value // map[string]protocol.StateMsg, refreshed each tick
}

// Region is the runtime state of one configured region. Regions are
// independent: an agent is a member of exactly one at a time and no query
// ever spans two.
type Region struct {
	def     regions.Region
	index   *spatial.Grid
	members map[string]struct{}
	objects map[string]*Object
	ring    *eventRing
	subs    map[string]*subscriber
	weather string
	rng     *rand.Rand
}

// TickLogger receives one entry per tick (see persistence/log).
type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// EventArchive receives every published event (see persistence/indexdb).
// Implementations must not block the engine loop.
type EventArchive interface {
	ArchiveEvents(events []protocol.Event)
}

type TickLogEntry struct {
	Tick   uint64           `json:"tick"`
	Agents int              `json:"agents"`
	Events []protocol.Event `json:"events,omitempty"`
}

type Metrics struct {
	Tick          uint64  `json:"tick"`
	Agents        int     `json:"agents"`
	Regions       int     `json:"regions"`
	EventsTotal   uint64  `json:"events_total"`
	DroppedEvents uint64  `json:"dropped_events"`
	StepMS        float64 `json:"step_ms"`
	InboxDepth    int     `json:"inbox_depth"`
}

func New(cfg Config) (*Engine, error) {
	if cfg.Tuning.TickRateHz <= 0 {
		cfg.Tuning = tuning.Default()
	}
	if err := cfg.World.Validate(); err != nil {
		return nil, err
	}
	w := &Engine{
		cfg:       cfg.Tuning,
		def:       cfg.World,
		regions:   map[string]*Region{},
		agents:    map[string]*Agent{},
		gestures:  map[string]bool{},
		join:      make(chan joinReq, 64),
		leave:     make(chan leaveReq, 64),
		inbox:     make(chan actionReq, 256),
		heartbeat: make(chan string, 256),
		queryReq:  make(chan queryReq, 64),
		replayReq: make(chan replayReq, 64),
		stop:      make(chan struct{}),
	}
	for _, g := range cfg.World.Gestures {
		w.gestures[g] = true
	}
	for _, def := range cfg.World.Regions {
		reg := &Region{
			def:     def,
			index:   spatial.NewGrid(cfg.Tuning.GridCellSize),
			members: map[string]struct{}{},
			objects: map[string]*Object{},
			ring:    newEventRing(cfg.Tuning.EventBufferSize),
			subs:    map[string]*subscriber{},
			weather: def.Weather,
			rng:     rand.New(rand.NewSource(regionSeed(cfg.Seed, def.Name))),
		}
		if reg.weather == "" {
			reg.weather = "CLEAR"
		}
		for _, od := range def.Objects {
			o := newObject(od)
			reg.objects[o.ID] = o
			reg.index.Upsert(o.ID, o.Pos)
		}
		w.regions[def.Name] = reg
	}
	w.metrics.Store(Metrics{Regions: len(w.regions)})
	return w, nil
}

func regionSeed(seed int64, name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return seed ^ int64(h.Sum64())
}

// Tick returns the current world tick.
func (w *Engine) Tick() uint64 { return w.tick.Load() }

// Metrics returns the most recent per-tick metrics sample.
func (w *Engine) Metrics() Metrics {
	m, _ := w.metrics.Load().(Metrics)
	return m
}

// SetTickLogger installs the per-tick log tap. Call before Run.
func (w *Engine) SetTickLogger(l TickLogger) { w.tickLogger = l }

// SetEventArchive installs the event archive tap. Call before Run.
func (w *Engine) SetEventArchive(a EventArchive) { w.archive = a }

// SetSnapshotSink installs the periodic snapshot sink. Call before Run.
// Snapshots are offered non-blocking; a backed-up sink drops them.
func (w *Engine) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

// Params describes the world to clients in WELCOME.
func (w *Engine) Params() protocol.WorldParams {
	return protocol.WorldParams{
		TickRateHz:    w.cfg.TickRateHz,
		DayTicks:      w.cfg.DayTicks,
		WhisperRadius: w.cfg.WhisperRadius,
		NormalRadius:  w.cfg.NormalRadius,
		MaxMessageLen: w.cfg.MaxMessageLen,
	}
}

// DefaultRegion is where agents land when HELLO names no region.
func (w *Engine) DefaultRegion() string { return w.def.Regions[0].Name }

func (w *Engine) regionOf(a *Agent) *Region { return w.regions[a.Region] }

func (w *Engine) regionNames() []string {
	names := make([]string, 0, len(w.regions))
	for name := range w.regions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newSessionID() string { return "S-" + uuid.NewString() }

func regionNotFound(name string) error {
	return fmt.Errorf("unknown region %q", name)
}
