package version

// Overridden at build time via -ldflags.
var (
	buildVersion = "dev"
	builtAt      = "unknown"
)

// Info is the running build's metadata.
type Info struct {
	BuildVersion string `json:"buildVersion"`
	BuiltAt      string `json:"builtAt"`
}

func Get() Info {
	return Info{
		BuildVersion: buildVersion,
		BuiltAt:      builtAt,
	}
}

func (i Info) String() string {
	return i.BuildVersion + " (built " + i.BuiltAt + ")"
}
