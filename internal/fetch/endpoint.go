package fetch

import (
	"net"
	"net/netip"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"
)

// ServiceEndpoint is the fixed address and authentication of one daemon.
// Changing the ports requires restarting the daemon.
type ServiceEndpoint struct {
	Host        string
	ProxyPort   int
	ControlPort int
	Username    string
	Password    string
}

// Auth returns the daemon secret in user:password form.
func (e ServiceEndpoint) Auth() string {
	return e.Username + ":" + e.Password
}

// ControlURL returns the base URL of the control API, with a trailing slash.
func (e ServiceEndpoint) ControlURL() string {
	host := e.Host
	if host == "" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(e.ControlPort)) + "/"
}

// Session is a daemon-issued credential pair scoped to one build.
type Session struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

// Credentials returns the proxy credentials for the session.
func (s Session) Credentials() Credentials {
	return Credentials{SessionID: s.ID, Token: s.Token}
}

func (s Session) String() string { return s.Credentials().String() }

// MarshalZerologObject logs the session without its token.
func (s Session) MarshalZerologObject(e *zerolog.Event) {
	e.Str("session_id", s.ID)
}

// Credentials authorize proxy traffic as one session. The token is never
// included in String or log output.
type Credentials struct {
	SessionID string
	Token     string
}

func (c Credentials) String() string {
	return c.SessionID + ":xxxxx"
}

func (c Credentials) MarshalZerologObject(e *zerolog.Event) {
	e.Str("session_id", c.SessionID)
}

func (c Credentials) userinfo() *url.Userinfo {
	return url.UserPassword(c.SessionID, c.Token)
}

// NetworkInfo links a session to the gateway an instance uses to reach the
// host-local proxy.
type NetworkInfo struct {
	Gateway     netip.Addr
	ProxyPort   int
	Credentials Credentials
}

// ProxyURL returns http://{sessionId}:{token}@{gateway}:{proxyPort}/.
// The result embeds the token; never log it.
func (n NetworkInfo) ProxyURL() string {
	return n.url().String()
}

// String returns the proxy URL with the token redacted.
func (n NetworkInfo) String() string {
	return n.url().Redacted()
}

func (n NetworkInfo) url() *url.URL {
	return &url.URL{
		Scheme: "http",
		User:   n.Credentials.userinfo(),
		Host:   net.JoinHostPort(n.Gateway.String(), strconv.Itoa(n.ProxyPort)),
		Path:   "/",
	}
}

// Env returns the variables a build process needs to use the proxy and
// trust its certificate.
func (n NetworkInfo) Env() map[string]string {
	proxy := n.ProxyURL()
	return map[string]string{
		"http_proxy":         proxy,
		"https_proxy":        proxy,
		"REQUESTS_CA_BUNDLE": InstanceCertPath,
		"CARGO_HTTP_CAINFO":  InstanceCertPath,
	}
}
