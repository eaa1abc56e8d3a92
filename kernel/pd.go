package kernel

import (
	"fmt"

	"nucleus/kernel/object"
	"nucleus/kernel/tlb"
)

// PD is a protection domain: an address space its threads run in.
type PD struct {
	k     *Kernel
	id    object.ID
	label string
	table *tlb.SectionTable
}

// ID returns the PD's identity.
func (pd *PD) ID() object.ID { return pd.id }

// Label returns the name the PD was created with.
func (pd *PD) Label() string { return pd.label }

// Table returns the PD's first-level translation table.
func (pd *PD) Table() *tlb.SectionTable { return pd.table }

// Privileged reports whether pd is the core protection domain.
func (pd *PD) Privileged() bool { return pd == pd.k.core }

// NewPD creates a protection domain whose section table lives at the
// physical address tableBase.
func (k *Kernel) NewPD(label string, tableBase uint32) (*PD, error) {
	pd := &PD{k: k, label: label, table: tlb.NewSectionTable(tableBase, k.cfg.CacheSupport)}
	id, err := k.pds.Register(pd)
	if err != nil {
		return nil, fmt.Errorf("new pd %q: %w", label, err)
	}
	pd.id = id
	k.logf("pd %d %q table=%#x", id, label, tableBase)
	return pd, nil
}

// PD returns the protection domain named by id.
func (k *Kernel) PD(id object.ID) (*PD, bool) { return k.pds.Lookup(id) }

// EachPD calls fn for every protection domain in id order until fn returns
// false.
func (k *Kernel) EachPD(fn func(*PD) bool) {
	k.pds.Each(func(_ object.ID, pd *PD) bool { return fn(pd) })
}

// CorePD returns the privileged protection domain.
func (k *Kernel) CorePD() *PD { return k.core }

// Insert maps 2^sizeLog2 bytes at vo to pa in pd, taking second-level table
// memory from the kernel's pool when needed. It reports false if the pool
// is exhausted.
func (k *Kernel) Insert(pd *PD, vo, pa uint32, sizeLog2 uint, flags tlb.Flags) bool {
	need, ok := pd.table.InsertTranslation(vo, pa, sizeLog2, flags, nil)
	if ok {
		return true
	}
	if k.cfg.TableMemory == nil {
		return false
	}
	b, ok := k.cfg.TableMemory.Donate(need)
	if !ok {
		return false
	}
	pd.table.InsertTranslation(vo, pa, sizeLog2, flags, &b)
	return true
}

// Unmap removes [vo, vo+size) from pd and returns emptied second-level
// tables to the kernel's pool. It returns the number of tables regained.
func (k *Kernel) Unmap(pd *PD, vo, size uint32) int {
	pd.table.RemoveRegion(vo, size)
	return k.regain(pd)
}

func (k *Kernel) regain(pd *PD) int {
	n := 0
	for {
		b, ok := pd.table.RegainMemory()
		if !ok {
			return n
		}
		if k.cfg.TableMemory != nil {
			k.cfg.TableMemory.Reclaim(b)
		}
		n++
	}
}

// DestroyPD unmaps everything in pd and releases its identity. Threads
// still assigned to pd are rejected with ErrPDInUse.
func (k *Kernel) DestroyPD(pd *PD) error {
	if pd == k.core {
		return fmt.Errorf("destroy pd %d: %w", pd.id, ErrPDInUse)
	}
	inUse := false
	k.threads.Each(func(_ object.ID, t *Thread) bool {
		if t.pd == pd.id && t.state != Stopped {
			inUse = true
		}
		return !inUse
	})
	if inUse {
		return fmt.Errorf("destroy pd %d: %w", pd.id, ErrPDInUse)
	}
	pd.table.RemoveRegion(0, ^uint32(0))
	k.regain(pd)
	return k.pds.Deregister(pd.id)
}
