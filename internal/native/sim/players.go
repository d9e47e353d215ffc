// Package sim is an in-memory engine implementing the native collaborator
// interfaces. It backs the tests and the demo driver.
package sim

import (
	"github.com/onesync/clonecore/internal/native"
)

// Player is a simulated engine player structure.
type Player struct {
	Index   uint8
	Info    bool
	PedObj  *Object
	Resets  int
	History []uint8 // every index ever written
}

// NewPlayer returns a live player at idx.
func NewPlayer(idx uint8) *Player {
	return &Player{Index: idx, Info: true}
}

func (p *Player) PhysicalIndex() uint8 { return p.Index }

func (p *Player) SetPhysicalIndex(idx uint8) {
	p.Index = idx
	p.History = append(p.History, idx)
}

func (p *Player) HasPlayerInfo() bool { return p.Info }

func (p *Player) Ped() native.NetworkObject {
	if p.PedObj == nil {
		return nil
	}
	return p.PedObj
}

func (p *Player) Reset() {
	p.Resets++
	p.Info = false
	p.PedObj = nil
	p.Index = 0xFF
}

// Pool is a simulated player pool.
type Pool struct {
	Local     *Player
	Allocated []*Player
	Detached  []native.NetworkObject
}

// NewPool returns a pool whose local player starts at index 0.
func NewPool() *Pool {
	return &Pool{Local: NewPlayer(0)}
}

func (p *Pool) LocalPlayer() native.NetPlayer { return p.Local }

func (p *Pool) Allocate() native.NetPlayer {
	pl := &Player{Info: true}
	p.Allocated = append(p.Allocated, pl)
	return pl
}

func (p *Pool) DetachPed(ped native.NetworkObject) {
	p.Detached = append(p.Detached, ped)
}
