package appconf

// Environment identifies the operating environment for the application.
type Environment int

const (
	Test Environment = iota
	Development
	Production
)

// EnvFromString maps an environment name to its Environment value.
// Unknown names map to Development.
func EnvFromString(name string) Environment {
	switch name {
	case "test":
		return Test
	case "production":
		return Production
	default:
		return Development
	}
}

func (e Environment) String() string {
	switch e {
	case Test:
		return "test"
	case Production:
		return "production"
	default:
		return "development"
	}
}
