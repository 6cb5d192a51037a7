package big5

// Level is a qualitative reading of a single axis value.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

// Band thresholds.
const (
	HighThreshold = 0.7
	LowThreshold  = 0.3
)

// Band maps a value to high (>= 0.7), low (<= 0.3) or medium.
func Band(x float64) Level {
	switch {
	case x >= HighThreshold:
		return LevelHigh
	case x <= LowThreshold:
		return LevelLow
	default:
		return LevelMedium
	}
}

// Bands returns the level of every axis in storage order.
func (v Vector) Bands() [5]Level {
	var out [5]Level
	for i, x := range v.Seq() {
		out[i] = Band(x)
	}
	return out
}
