package manager

import (
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"npud/pkg/types"
)

// Status is the operator-facing snapshot served by /status.
type Status struct {
	State         string  `json:"state"`
	ResidentModel string  `json:"resident_model,omitempty"`
	ResidentSince string  `json:"resident_since,omitempty"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	MemoryUsedPct float64 `json:"memory_used_pct,omitempty"`
	Models        int     `json:"models"`
}

// Status reports the slot state without touching the slot lock, so it
// stays responsive during multi-minute loads.
func (m *Manager) Status() Status {
	m.residentMu.Lock()
	name, since := m.residentName, m.residentAt
	m.residentMu.Unlock()

	s := Status{
		State:         "idle",
		UptimeSeconds: int64(time.Since(m.started).Seconds()),
		Models:        len(m.catalog),
	}
	if name != "" {
		s.State = "resident"
		s.ResidentModel = name
		s.ResidentSince = since.UTC().Format(time.RFC3339)
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemoryUsedPct = vm.UsedPercent
	}
	return s
}

// Resident lists the loaded model in the Ollama /api/ps shape: zero or
// one entries.
func (m *Manager) Resident() []types.ResidentModel {
	m.residentMu.Lock()
	name := m.residentName
	m.residentMu.Unlock()
	if name == "" {
		return []types.ResidentModel{}
	}
	return []types.ResidentModel{{Name: name, Model: name}}
}
