package ledger

// Level is the fill state of one material channel.
type Level struct {
	Material string
	Type     MaterialType
	Channel  int
	ID       string
	Amount   float64
	Set      bool
	// Capacity is zero for untracked classes (solids).
	Capacity float64
	// Threshold is where the channel must be serviced.
	Threshold float64
}

// Fraction returns Amount/Capacity, or 0 when capacity is unknown.
func (lv Level) Fraction() float64 {
	if lv.Capacity <= 0 {
		return 0
	}
	return lv.Amount / lv.Capacity
}

// NeedsService reports whether the channel is at or past its threshold.
func (lv Level) NeedsService() bool {
	return lv.Threshold > 0 && lv.Amount >= lv.Threshold
}

// Levels reports every channel of every material against limits.
func Levels(l *Ledger, limits Limits) []Level {
	var out []Level
	for _, m := range l.Materials() {
		var capacity, threshold float64
		switch m.Type {
		case TypeLiquid:
			capacity, threshold = limits.LiquidLimit, limits.LiquidThreshold()
		case TypeSubsampling:
			capacity, threshold = limits.SubsampleCapacity, limits.SubsampleCapacity
		case TypeWash:
			capacity, threshold = limits.WashLimit, limits.WashThreshold()
		}
		for ch := 1; ch <= m.Channels(); ch++ {
			id := m.ID(ch)
			amount, set := m.Amount(ch)
			if id == "" && !set {
				continue
			}
			out = append(out, Level{
				Material:  m.Name,
				Type:      m.Type,
				Channel:   ch,
				ID:        id,
				Amount:    amount,
				Set:       set,
				Capacity:  capacity,
				Threshold: threshold,
			})
		}
	}
	return out
}
