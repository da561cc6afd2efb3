// Package bybit is a minimal Bybit V5 REST/WS client: request signing,
// retryable transport, and the handful of endpoints/channels this engine
// needs. It intentionally does not wrap the full V5 surface.
package bybit

// Environment selects which base URLs the client talks to.
type Environment int

const (
	Testnet Environment = iota
	Mainnet
)

// ParseEnvironment resolves an environment name, defaulting to Testnet
// per the config precedence rule (env override > config file > default
// testnet) — callers apply that precedence before calling this.
func ParseEnvironment(s string) Environment {
	switch s {
	case "mainnet":
		return Mainnet
	default:
		return Testnet
	}
}

type endpoints struct {
	RESTBase       string
	PublicWSLinear string
	PrivateWS      string
}

var endpointTable = map[Environment]endpoints{
	Testnet: {
		RESTBase:       "https://api-testnet.bybit.com",
		PublicWSLinear: "wss://stream-testnet.bybit.com/v5/public/linear",
		PrivateWS:      "wss://stream-testnet.bybit.com/v5/private",
	},
	Mainnet: {
		RESTBase:       "https://api.bybit.com",
		PublicWSLinear: "wss://stream.bybit.com/v5/public/linear",
		PrivateWS:      "wss://stream.bybit.com/v5/private",
	},
}

func (e Environment) endpoints() endpoints { return endpointTable[e] }

// RESTBaseURL returns the REST base URL for this environment.
func (e Environment) RESTBaseURL() string { return e.endpoints().RESTBase }

// PublicWSURL returns the public linear-perpetual WS URL for this environment.
func (e Environment) PublicWSURL() string { return e.endpoints().PublicWSLinear }

// PrivateWSURL returns the private WS URL for this environment.
func (e Environment) PrivateWSURL() string { return e.endpoints().PrivateWS }
