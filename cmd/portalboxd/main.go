package main

import (
	"flag"
	"os"

	portalboxd "github.com/portalbox/portalboxd/pkg"
	log "github.com/sirupsen/logrus"
)

func main() {
	var port int
	var bind string
	var iface string
	var ssid string
	var password string
	var gateway string
	var verbose bool
	var help bool

	flag.IntVar(&port, "port", 8080, "REST API Port")
	flag.StringVar(&bind, "addr", "0.0.0.0", "Address to bind to")
	flag.StringVar(&iface, "interface", "", "WiFi interface to use (default: first managed wifi device)")
	flag.StringVar(&ssid, "ssid", "PortalBox Setup", "SSID of the portal access point")
	flag.StringVar(&password, "password", "", "WPA passphrase for the portal (empty for an open network)")
	flag.StringVar(&gateway, "gateway", "192.168.42.1", "Gateway address of the portal network")
	flag.BoolVar(&verbose, "v", false, "Be verbose")
	flag.BoolVar(&help, "h", false, "Get help")
	flag.Parse()

	if help {
		flag.Usage()
		os.Exit(0)
	}

	if verbose {
		log.SetLevel(log.DebugLevel)
	}

	config := portalboxd.ServerConfig{
		Port:      port,
		Bind:      bind,
		Interface: iface,
		SSID:      ssid,
		Password:  password,
		Gateway:   gateway,
		Verbose:   verbose,
	}

	srv := Server(config)
	srv.Start()
}
