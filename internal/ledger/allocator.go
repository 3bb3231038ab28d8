package ledger

import (
	"errors"
	"fmt"
)

// Allocation failures. An allocation error aborts the whole batch; the
// ledger must not be saved afterwards.
var (
	ErrUnknownMaterial  = errors.New("material not in ledger")
	ErrUnknownType      = errors.New("unknown material type")
	ErrRefillLiquid     = errors.New("refill liquid channels")
	ErrSubsampleRestock = errors.New("subsample plates need restocking")
	ErrWashFull         = errors.New("subsample wash bottle needs draining")
)

// AllocationError carries the material and running amount of a failed
// allocation.
type AllocationError struct {
	Material string
	Channel  int
	Amount   float64
	Err      error
}

func (e *AllocationError) Error() string {
	if e.Channel > 0 {
		return fmt.Sprintf("%s (material %s, channel %d, amount %.4f)", e.Err, e.Material, e.Channel, e.Amount)
	}
	return fmt.Sprintf("%s (material %s)", e.Err, e.Material)
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}

// Limits are the channel capacities and switches of the dispensing rig.
type Limits struct {
	// LiquidLimit is the volume a liquid channel holds.
	LiquidLimit     float64 `koanf:"liquid_limit"`
	LiquidDeadspace float64 `koanf:"liquid_deadspace"`
	// WashLimit is the volume of the subsample wash bottle.
	WashLimit     float64 `koanf:"wash_limit"`
	WashDeadspace float64 `koanf:"wash_deadspace"`
	// SubsampleCapacity is the amount one subsample channel can give.
	SubsampleCapacity float64 `koanf:"subsample_capacity"`
	SubsampleChannels int     `koanf:"subsample_channels"`
	// WashAmount is added to the wash bottle per subsample dispense.
	WashAmount float64 `koanf:"wash_amount"`
	// WashZeros counts zero-amount subsample dispenses towards the wash.
	WashZeros bool `koanf:"wash_zeros"`
	// SwitchThrough spreads subsampling over channels id1..idN.
	SwitchThrough bool `koanf:"subsample_switch_through"`
}

// DefaultLimits returns the rig's factory limits.
func DefaultLimits() Limits {
	return Limits{
		LiquidLimit:       1000,
		LiquidDeadspace:   0.05,
		WashLimit:         35000,
		WashDeadspace:     0.1,
		SubsampleCapacity: 36,
		SubsampleChannels: 8,
	}
}

// LiquidThreshold is the fill level at which a liquid channel needs refilling.
func (l Limits) LiquidThreshold() float64 {
	return l.LiquidLimit - l.LiquidLimit*l.LiquidDeadspace
}

// WashThreshold is the fill level at which the wash bottle needs draining.
func (l Limits) WashThreshold() float64 {
	return l.WashLimit - l.WashLimit*l.WashDeadspace
}

// Allocation is the dispenser assignment for one material of one line.
type Allocation struct {
	Material string
	Type     MaterialType
	// Channel is 1-based; zero when the line is not tracked.
	Channel   int
	ChannelID string
	// Amount is the emitted amount, converted to grams for solids.
	Amount float64
	// Charged is what was added to the ledger.
	Charged float64
}

// Allocator applies a batch's dispenses to a ledger.
type Allocator struct {
	ledger      *Ledger
	limits      Limits
	washCounter float64
}

// NewAllocator creates an allocator over l.
func NewAllocator(l *Ledger, limits Limits) *Allocator {
	return &Allocator{ledger: l, limits: limits}
}

// Ledger returns the ledger being charged.
func (a *Allocator) Ledger() *Ledger {
	return a.ledger
}

// Allocate charges amount*multiplier of material to its channel and
// returns the dispenser assignment.
func (a *Allocator) Allocate(material string, amount, multiplier float64) (Allocation, error) {
	m, ok := a.ledger.Get(material)
	if !ok {
		return Allocation{}, &AllocationError{Material: material, Err: ErrUnknownMaterial}
	}

	alloc := Allocation{Material: material, Type: m.Type, Amount: amount}

	switch m.Type {
	case TypeLiquid:
		charge := amount * multiplier
		_, wasSet := m.Amount(1)
		total := m.add(1, charge)
		// An empty channel is assumed freshly filled.
		if wasSet && total >= a.limits.LiquidThreshold() {
			return Allocation{}, &AllocationError{Material: material, Channel: 1, Amount: total, Err: ErrRefillLiquid}
		}
		alloc.Channel, alloc.ChannelID, alloc.Charged = 1, m.ID(1), charge

	case TypeSolid:
		alloc.Amount = toGrams(amount)
		charge := alloc.Amount * multiplier
		m.add(1, charge)
		alloc.Channel, alloc.ChannelID, alloc.Charged = 1, m.ID(1), charge

	case TypeSubsampling:
		// Replicated samples draw from the plate once per copy.
		charge := amount * multiplier
		if !a.limits.SwitchThrough {
			m.add(1, charge)
			alloc.Channel, alloc.ChannelID, alloc.Charged = 1, m.ID(1), charge
			break
		}
		channel, err := a.pickSubsampleChannel(m, charge)
		if err != nil {
			return Allocation{}, err
		}
		a.countWash(material, amount)
		m.add(channel, charge)
		alloc.Channel, alloc.ChannelID, alloc.Charged = channel, m.ID(channel), charge

	default:
		return Allocation{}, &AllocationError{Material: material, Err: fmt.Errorf("%w %q", ErrUnknownType, m.Type)}
	}

	return alloc, nil
}

// Assign returns the dispenser class and emitted amount of a material
// without charging the ledger.
func (a *Allocator) Assign(material string, amount float64) (Allocation, error) {
	m, ok := a.ledger.Get(material)
	if !ok {
		return Allocation{}, &AllocationError{Material: material, Err: ErrUnknownMaterial}
	}
	alloc := Allocation{Material: material, Type: m.Type, Amount: amount}
	if m.Type == TypeSolid {
		alloc.Amount = toGrams(amount)
	}
	return alloc, nil
}

// pickSubsampleChannel returns the first channel that is empty or still
// has room for charge.
func (a *Allocator) pickSubsampleChannel(m *Material, charge float64) (int, error) {
	channels := min(a.limits.SubsampleChannels, m.Channels())
	for ch := 1; ch <= channels; ch++ {
		cur, ok := m.Amount(ch)
		if !ok || cur+charge <= a.limits.SubsampleCapacity {
			return ch, nil
		}
	}
	last, _ := m.Amount(channels)
	return 0, &AllocationError{Material: m.Name, Channel: channels, Amount: last, Err: ErrSubsampleRestock}
}

func (a *Allocator) countWash(material string, amount float64) {
	if a.limits.WashZeros {
		a.washCounter += a.limits.WashAmount
		return
	}
	if amount > 0 {
		a.washCounter += a.limits.WashAmount
		a.ledger.MarkInWash(material)
	}
}

// FinishLine charges the line's wash usage to the wash bottle and resets
// the counter. Ledgers without a wash row are left alone.
func (a *Allocator) FinishLine() error {
	counter := a.washCounter
	a.washCounter = 0

	m, ok := a.ledger.Get(WashMaterial)
	if !ok || m.Type != TypeWash {
		return nil
	}
	total := m.add(1, counter)
	if total > a.limits.WashThreshold() {
		return &AllocationError{Material: WashMaterial, Channel: 1, Amount: total, Err: ErrWashFull}
	}
	return nil
}

// toGrams converts a solid amount given in mg.
func toGrams(mg float64) float64 {
	if mg > 0 {
		return mg / 1000
	}
	return mg
}
