package service

import (
	"sync/atomic"
	"time"
)

type State struct {
	ready     atomic.Bool
	startedAt time.Time

	streamsUp     atomic.Bool
	mirrorEnabled atomic.Bool
	activeTargets atomic.Int32
	lastFillUnix  atomic.Int64 // unix seconds
	lastPollUnix  atomic.Int64 // unix seconds
}

func NewState() *State {
	s := &State{startedAt: time.Now()}
	s.ready.Store(false)
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetStreamsUp(v bool) { s.streamsUp.Store(v) }
func (s *State) StreamsUp() bool     { return s.streamsUp.Load() }

func (s *State) SetMirrorEnabled(v bool) { s.mirrorEnabled.Store(v) }
func (s *State) MirrorEnabled() bool     { return s.mirrorEnabled.Load() }

func (s *State) SetActiveTargets(n int) { s.activeTargets.Store(int32(n)) }
func (s *State) ActiveTargets() int     { return int(s.activeTargets.Load()) }

func (s *State) TouchFill(t time.Time) { s.lastFillUnix.Store(t.Unix()) }
func (s *State) LastFill() time.Time  { return fromUnix(s.lastFillUnix.Load()) }

func (s *State) TouchPoll(t time.Time) { s.lastPollUnix.Store(t.Unix()) }
func (s *State) LastPoll() time.Time  { return fromUnix(s.lastPollUnix.Load()) }

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }

func fromUnix(u int64) time.Time {
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}
