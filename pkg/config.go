package portalboxd

type ServerConfig struct {
	Bind      string
	Port      int
	Interface string
	SSID      string
	Password  string
	Gateway   string
	Verbose   bool
}
