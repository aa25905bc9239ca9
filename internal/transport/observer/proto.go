package observer

import (
	"clipvox/internal/brick"
	"clipvox/internal/clipmap"
)

const Version = 1

// SubscribeMsg is the first message a client sends. Every selects one
// stats message per that many frames.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion int    `json:"protocol_version"`
	Every           int    `json:"every,omitempty"`
}

// StatsMsg is pushed to subscribers as frames complete.
type StatsMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion int        `json:"protocol_version"`
	Frame           uint64     `json:"frame"`
	Camera          [3]float64 `json:"camera"`
	ActiveLODs      int        `json:"active_lods"`
	Inflight        int        `json:"inflight"`
	PendingEdits    int        `json:"pending_edits"`
	LODs            []LODStats `json:"lods"`
	Store           StoreStats `json:"store"`
}

type LODStats struct {
	Index       int    `json:"index"`
	State       string `json:"state"`
	Ready       bool   `json:"ready"`
	QueuedPages int    `json:"queued_pages"`
	Completed   int    `json:"completed"`
	Rebuilding  int    `json:"rebuilding"`
}

type StoreStats struct {
	Bricks       int            `json:"bricks"`
	Unreferenced int            `json:"unreferenced"`
	Retired      int            `json:"retired"`
	PoolInUse    map[string]int `json:"pool_in_use"`
	PoolBytes    map[string]int `json:"pool_bytes"`
}

// NewStatsMsg flattens controller stats for the wire.
func NewStatsMsg(s clipmap.Stats, camera [3]float64) StatsMsg {
	m := StatsMsg{
		Type:            "STATS",
		ProtocolVersion: Version,
		Frame:           s.Frame,
		Camera:          camera,
		ActiveLODs:      s.ActiveLODs,
		Inflight:        s.Inflight,
		PendingEdits:    s.PendingEdits,
		LODs:            make([]LODStats, len(s.Ready)),
		Store: StoreStats{
			Bricks:       s.Store.Bricks,
			Unreferenced: s.Store.Unreferenced,
			Retired:      s.Store.Retired,
			PoolInUse:    make(map[string]int, 3),
			PoolBytes:    make(map[string]int, 3),
		},
	}
	for i := range m.LODs {
		m.LODs[i] = LODStats{
			Index:       i,
			State:       s.States[i],
			Ready:       s.Ready[i],
			QueuedPages: s.QueuedPages[i],
			Completed:   s.Completed[i],
			Rebuilding:  s.Rebuilding[i],
		}
	}
	for i := range s.Store.PoolInUse {
		name := brick.Encoding(i).String()
		m.Store.PoolInUse[name] = s.Store.PoolInUse[i]
		m.Store.PoolBytes[name] = s.Store.PoolBytes[i]
	}
	return m
}
