package domain

// Classification labels an address for cleanup purposes.
type Classification int

const (
	Public Classification = iota
	NonPublic
	Invalid
)

func (c Classification) String() string {
	switch c {
	case Public:
		return "public"
	case NonPublic:
		return "nonPublic"
	default:
		return "invalid"
	}
}
