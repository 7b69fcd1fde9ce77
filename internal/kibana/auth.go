package kibana

import (
	"encoding/base64"
	"fmt"
)

// Auth selects how requests authenticate to the server. Exactly one concrete
// type is chosen during configuration; both kinds of credentials at once is
// rejected before a client is built.
type Auth interface {
	// header returns the Authorization header value, or "" when the
	// server is unauthenticated.
	header() string

	fmt.Stringer
}

// AuthNone disables authentication.
type AuthNone struct{}

func (AuthNone) header() string { return "" }
func (AuthNone) String() string { return "None" }

// AuthBasic authenticates with a username and password.
type AuthBasic struct {
	Username string
	Password string
}

func (a AuthBasic) header() string {
	credentials := base64.StdEncoding.EncodeToString([]byte(a.Username + ":" + a.Password))
	return "Basic " + credentials
}

func (AuthBasic) String() string { return "Basic" }

// AuthAPIKey authenticates with an Elasticsearch API key.
type AuthAPIKey struct {
	Key string
}

func (a AuthAPIKey) header() string { return "ApiKey " + a.Key }
func (AuthAPIKey) String() string   { return "ApiKey" }
